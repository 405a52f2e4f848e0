package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Sink receives a run's events in the order the controller produces them.
// Emit must not reorder or batch.
type Sink interface {
	Emit(Event)
}

// ContextSink is a Sink whose delivery can be abandoned. EmitContext reports
// whether e was delivered.
type ContextSink interface {
	Sink
	EmitContext(ctx context.Context, e Event) bool
}

// EmitContext delivers e to s, giving up when ctx is done if s supports it.
func EmitContext(ctx context.Context, s Sink, e Event) bool {
	if cs, ok := s.(ContextSink); ok {
		return cs.EmitContext(ctx, e)
	}
	s.Emit(e)
	return true
}

// FuncSink adapts a function to Sink.
type FuncSink func(Event)

// Emit calls f(e).
func (f FuncSink) Emit(e Event) { f(e) }

// ChanSink delivers events on a channel. Emit blocks when the channel is full,
// which applies backpressure to the run.
type ChanSink chan Event

// Emit sends e on the channel.
func (c ChanSink) Emit(e Event) { c <- e }

// EmitContext sends e unless ctx is done first.
func (c ChanSink) EmitContext(ctx context.Context, e Event) bool {
	select {
	case c <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// WriterSink writes events as JSONL. Safe for use by several runs sharing
// one writer.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewWriterSink returns a sink encoding one JSON object per line to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// Emit encodes e. The first write error is kept and later events are dropped.
func (s *WriterSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(e)
}

// Err returns the first write error, if any.
func (s *WriterSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Collector records events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (c *Collector) Emit(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a copy of everything collected so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Points returns the current point set: the last reset plus every append
// after it.
func (c *Collector) Points() []Point {
	var points []Point
	for _, e := range c.Events() {
		switch e.Type {
		case EventPointsReset:
			points = append([]Point(nil), e.Points...)
		case EventPointsAppend:
			points = append(points, e.Points...)
		}
	}
	return points
}

// Terminal returns the run's terminal event, if one has arrived.
func (c *Collector) Terminal() (Event, bool) {
	events := c.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Terminal() {
			return events[i], true
		}
	}
	return Event{}, false
}
