// Package sampling partitions a run's sentence indices into the reducer's fit
// sample and the transform remainder.
package sampling

import "math/rand/v2"

// Sampler draws uniform samples without replacement.
// A nil rng uses the process-wide source.
type Sampler struct {
	rng *rand.Rand
}

// New returns a Sampler backed by rng. Pass nil for the process-wide source.
func New(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}

func (s *Sampler) intN(n int) int {
	if s == nil || s.rng == nil {
		return rand.IntN(n)
	}
	return s.rng.IntN(n)
}

// Choose returns min(size, total) distinct indices drawn uniformly from [0, total).
// Non-positive size or total yields an empty slice. Order is random.
func (s *Sampler) Choose(total, size int) []int {
	if total <= 0 || size <= 0 {
		return []int{}
	}
	if size > total {
		size = total
	}

	perm := make([]int, total)
	for i := range perm {
		perm[i] = i
	}
	// Partial Fisher-Yates: only the first size slots need settling.
	for i := 0; i < size; i++ {
		j := i + s.intN(total-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:size:size]
}

// Mask returns a membership mask over [0, total) with exactly min(size, total)
// entries set.
func (s *Sampler) Mask(total, size int) []bool {
	if total < 0 {
		total = 0
	}
	mask := make([]bool, total)
	for _, idx := range s.Choose(total, size) {
		mask[idx] = true
	}
	return mask
}

var defaultSampler = New(nil)

// Choose draws from the process-wide source. See Sampler.Choose.
func Choose(total, size int) []int {
	return defaultSampler.Choose(total, size)
}

// Mask builds a mask from the process-wide source. See Sampler.Mask.
func Mask(total, size int) []bool {
	return defaultSampler.Mask(total, size)
}
