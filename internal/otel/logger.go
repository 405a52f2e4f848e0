package otel

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// queueSize bounds how many encoded events wait for the writer goroutine.
const queueSize = 4096

// pending is an encoded line plus the event it came from. The ring buffer
// keeps the event itself so Dur survives.
type pending struct {
	line []byte
	ev   Event
}

// Logger appends events to a JSONL stream from a single writer goroutine.
// Emit never blocks a run: when the queue is full the event is counted as
// dropped. A nil *Logger discards everything.
type Logger struct {
	session string
	out     io.Writer
	queue   chan pending
	stopped chan struct{}

	ringMu sync.Mutex
	ring   *RingBuffer

	dropped  atomic.Uint64
	closing  atomic.Bool
	stopOnce sync.Once
}

// NewLogger starts a Logger writing to w. Close flushes and stops it.
func NewLogger(w io.Writer) *Logger {
	var id [8]byte
	_, _ = rand.Read(id[:])

	l := &Logger{
		session: hex.EncodeToString(id[:]),
		out:     w,
		queue:   make(chan pending, queueSize),
		stopped: make(chan struct{}),
	}
	go l.write()
	return l
}

// NewNullLogger returns a Logger that only feeds its ring buffer.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

// write is the only goroutine touching out.
func (l *Logger) write() {
	defer close(l.stopped)
	for p := range l.queue {
		if _, err := l.out.Write(p.line); err != nil {
			l.dropped.Add(1)
		}
		l.ringMu.Lock()
		ring := l.ring
		l.ringMu.Unlock()
		if ring != nil {
			ring.Push(p.ev)
		}
	}
}

// Emit stamps e with the time and session and queues it.
func (l *Logger) Emit(e Event) {
	if l == nil {
		return
	}
	// Close may win the race between the closing check and the send.
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()
	if l.closing.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.session
	line, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}

	select {
	case l.queue <- pending{line: append(line, '\n'), ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Trace records a pipeline checkpoint or yield for runID when tracing is on.
func (l *Logger) Trace(kind EventKind, comp, runID, msg string) {
	if !TraceEnabled() {
		return
	}
	l.Emit(Event{Level: LevelTrace, Kind: kind, Comp: comp, RunID: runID, Msg: msg})
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event carrying err's text.
func (l *Logger) Error(kind EventKind, comp string, err error) {
	e := Event{Level: LevelError, Kind: kind, Comp: comp}
	if err != nil {
		e.Err = err.Error()
	}
	l.Emit(e)
}

// SetRingBuffer mirrors every written event into buf.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	l.ringMu.Lock()
	l.ring = buf
	l.ringMu.Unlock()
}

// Dropped counts events that never reached the writer.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close drains the queue and stops the writer. Later Emits are dropped.
func (l *Logger) Close() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.queue)
		<-l.stopped
		if n := l.dropped.Load(); n > 0 {
			fmt.Fprintf(os.Stderr, "projector: %d events dropped during session %s\n", n, l.session)
		}
	})
}
