package pipeline

// Progress bands. Model load fills [0, loadBand); embedding, the fit bonus and
// transform fill the rest in proportion to work done.
const (
	loadBand      = 0.2
	embedBand     = 0.45
	fitBonus      = 0.1
	transformBand = 0.25
)

// progress tracks a run's sub-progress and yields a non-decreasing overall
// fraction in [0,1].
type progress struct {
	total       int
	embedded    int
	fitDone     bool
	remainder   int
	transformed int
	last        float64
}

// loading maps a model-load fraction into the load band.
func (p *progress) loading(f float64) float64 {
	return p.clamp(loadBand * f)
}

// at returns an explicit value, clamped.
func (p *progress) at(v float64) float64 {
	return p.clamp(v)
}

// current recomputes the overall fraction from sub-progress.
func (p *progress) current() float64 {
	embedRatio := 0.0
	if p.total > 0 {
		embedRatio = float64(p.embedded) / float64(p.total)
	}
	transformRatio := 1.0
	if p.remainder > 0 {
		transformRatio = float64(p.transformed) / float64(p.remainder)
	}
	v := loadBand + embedRatio*embedBand + transformRatio*transformBand
	if p.fitDone {
		v += fitBonus
	}
	return p.clamp(v)
}

func (p *progress) clamp(v float64) float64 {
	v = max(0, min(1, v))
	if v < p.last {
		v = p.last
	}
	p.last = v
	return v
}
