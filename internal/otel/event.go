// Package otel provides structured observability for projector runs.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the run view.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Run lifecycle
	KindRunStart  EventKind = "run.start"
	KindRunDone   EventKind = "run.done"
	KindRunError  EventKind = "run.error"
	KindRunCancel EventKind = "run.cancel"

	// Extractor
	KindModelLoad   EventKind = "model.load"
	KindModelCached EventKind = "model.cached"
	KindEmbedBatch  EventKind = "embed.batch"

	// Reducer
	KindUMAPFit       EventKind = "umap.fit"
	KindUMAPTransform EventKind = "umap.transform"

	// Coordinator
	KindJobSubmit EventKind = "coord.submit"
	KindJobSkip   EventKind = "coord.skip"

	// Store events
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Trace events, only emitted when PROJECTOR_TRACE is set
	KindCheckpoint EventKind = "trace.checkpoint"
	KindYield      EventKind = "trace.yield"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "pipeline", "coord", "ui", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire process
	RunID     string         `json:"run_id,omitempty"`     // caller-supplied run identifier
	Job       uint64         `json:"job,omitempty"`        // supervisor job number
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Model     string         `json:"model,omitempty"`
	Dims      int            `json:"dims,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
