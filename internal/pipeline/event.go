package pipeline

import (
	"encoding/json"
)

// EventType discriminates wire events.
type EventType string

const (
	EventProgress     EventType = "progress"
	EventPointsReset  EventType = "points-reset"
	EventPointsAppend EventType = "points-append"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Stage tags a progress event with the controller state that produced it.
type Stage string

const (
	StageLoadingModel  Stage = "loading-model"
	StageEmbedding     Stage = "embedding"
	StageUMAPFit       Stage = "umap-fit"
	StageUMAPTransform Stage = "umap-transform"
	StageDone          Stage = "done"
)

// Point is a projected sentence.
type Point struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	SentenceIndex int     `json:"sentenceIndex"`
}

// Event is one message on the event channel. Which fields are meaningful
// depends on Type; MarshalJSON writes only those.
type Event struct {
	RunID string
	Type  EventType

	// progress
	Stage        Stage
	StatusText   string
	Progress     float64
	EmbeddingDim int // 0 until known
	UsedDim      int // 0 until known

	// points-reset, points-append
	Points []Point

	// done
	TotalCount int
	ElapsedMs  float64

	// error
	Message string
}

// Terminal reports whether e ends its run.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// MarshalJSON encodes the wire shape for e.Type.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":  e.Type,
		"runId": e.RunID,
	}
	switch e.Type {
	case EventProgress:
		m["stage"] = e.Stage
		m["statusText"] = e.StatusText
		m["progress"] = e.Progress
		if e.EmbeddingDim > 0 {
			m["embeddingDim"] = e.EmbeddingDim
		}
		if e.UsedDim > 0 {
			m["usedDim"] = e.UsedDim
		}
	case EventPointsReset, EventPointsAppend:
		points := e.Points
		if points == nil {
			points = []Point{}
		}
		m["points"] = points
	case EventDone:
		m["totalCount"] = e.TotalCount
		m["elapsedMs"] = e.ElapsedMs
	case EventError:
		m["message"] = e.Message
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes any wire event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w struct {
		Type         EventType `json:"type"`
		RunID        string    `json:"runId"`
		Stage        Stage     `json:"stage"`
		StatusText   string    `json:"statusText"`
		Progress     float64   `json:"progress"`
		EmbeddingDim int       `json:"embeddingDim"`
		UsedDim      int       `json:"usedDim"`
		Points       []Point   `json:"points"`
		TotalCount   int       `json:"totalCount"`
		ElapsedMs    float64   `json:"elapsedMs"`
		Message      string    `json:"message"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		RunID:        w.RunID,
		Type:         w.Type,
		Stage:        w.Stage,
		StatusText:   w.StatusText,
		Progress:     w.Progress,
		EmbeddingDim: w.EmbeddingDim,
		UsedDim:      w.UsedDim,
		Points:       w.Points,
		TotalCount:   w.TotalCount,
		ElapsedMs:    w.ElapsedMs,
		Message:      w.Message,
	}
	return nil
}
