package otel

import (
	"os"
	"sync/atomic"
)

// trace gates trace-level events (pipeline checkpoints and yields). It starts
// from PROJECTOR_TRACE and can be switched on by the --trace flag.
var trace atomic.Bool

func init() {
	trace.Store(os.Getenv("PROJECTOR_TRACE") != "")
}

// TraceEnabled reports whether trace events are recorded.
func TraceEnabled() bool { return trace.Load() }

// SetTrace turns trace events on or off for the whole process.
func SetTrace(on bool) { trace.Store(on) }
