// Package coord runs projection jobs one at a time on a single worker
// goroutine, with newer submissions superseding older ones.
package coord

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abelbrown/projector/internal/logging"
	"github.com/abelbrown/projector/internal/otel"
	"github.com/abelbrown/projector/internal/pipeline"
)

// Runner executes one request. *pipeline.Controller implements it.
type Runner interface {
	Run(ctx context.Context, current pipeline.Checkpoint, req pipeline.Request, sink pipeline.Sink) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, current pipeline.Checkpoint, req pipeline.Request, sink pipeline.Sink) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, current pipeline.Checkpoint, req pipeline.Request, sink pipeline.Sink) error {
	return f(ctx, current, req, sink)
}

// Status is how a job ended.
type Status string

const (
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusSuperseded Status = "superseded"
)

// Outcome is delivered once per submitted job.
type Outcome struct {
	ID      JobID
	RunID   string
	Status  Status
	Err     error // set for StatusError
	Elapsed time.Duration
}

// RunRecord is what a Recorder receives for every finished job.
type RunRecord struct {
	Job       JobID
	RunID     string
	Model     string
	Precision string
	Sentences int
	Status    Status
	Message   string
	Started   time.Time
	Elapsed   time.Duration
}

// Recorder persists run history. Implementations must be goroutine-safe.
type Recorder interface {
	RecordRun(rec RunRecord) error
}

// Ticket is returned by Submit. Done receives exactly one Outcome.
type Ticket struct {
	ID    JobID
	RunID string
	Done  <-chan Outcome
}

type job struct {
	id   JobID
	req  pipeline.Request
	sink pipeline.Sink
	done chan Outcome

	// Set while the job runs; guarded by Coordinator.mu.
	cancel context.CancelFunc
}

// gatedSink delivers a job's events only while the job is current. The
// check and the delivery happen under the coordinator's gate, which Submit
// also takes to issue the next job ID, so no event of an older job is
// delivered once Submit has returned.
type gatedSink struct {
	c   *Coordinator
	j   *job
	ctx context.Context
}

func (g gatedSink) Emit(e pipeline.Event) {
	g.c.gate.Lock()
	defer g.c.gate.Unlock()
	if g.ctx.Err() != nil || !g.c.sup.IsCurrent(g.j.id) {
		return
	}
	pipeline.EmitContext(g.ctx, g.j.sink, e)
}

// Coordinator owns the single execution context for runs.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	runner   Runner
	sup      Supervisor
	recorder Recorder      // optional
	events   *otel.Logger  // optional
	wake     chan struct{} // capacity 1

	mu      sync.Mutex
	pending *job // latest-wins slot
	running *job

	// gate serializes event delivery against job ID issue.
	gate sync.Mutex

	wg sync.WaitGroup
}

// NewCoordinator creates a Coordinator. recorder and events may be nil.
func NewCoordinator(r Runner, recorder Recorder, events *otel.Logger) *Coordinator {
	return &Coordinator{
		runner:   r,
		recorder: recorder,
		events:   events,
		wake:     make(chan struct{}, 1),
	}
}

// Current returns the most recently issued job ID.
func (c *Coordinator) Current() JobID { return c.sup.Current() }

// Submit supersedes any in-flight or queued job and queues req.
// The new job becomes current before Submit returns, and no event of an
// earlier job is delivered after that. A delivery already in progress to a
// sink that is not a pipeline.ContextSink is waited for.
func (c *Coordinator) Submit(req pipeline.Request, sink pipeline.Sink) Ticket {
	c.mu.Lock()
	if c.running != nil {
		c.running.cancel()
	}
	c.mu.Unlock()

	c.gate.Lock()
	id := c.sup.Start()
	c.gate.Unlock()

	j := &job{
		id:   id,
		req:  req,
		sink: sink,
		done: make(chan Outcome, 1),
	}

	c.mu.Lock()
	replaced := c.pending
	c.pending = j
	c.mu.Unlock()

	if replaced != nil {
		c.skip(replaced)
	}

	c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindJobSubmit, Comp: "coord",
		RunID: req.RunID, Job: uint64(j.id), Count: len(req.Sentences)})

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return Ticket{ID: j.id, RunID: req.RunID, Done: j.done}
}

// Start launches the worker goroutine. Call with a cancellable context.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				if j := c.take(); j != nil {
					c.skip(j)
				}
				return
			case <-c.wake:
				if j := c.take(); j != nil {
					c.execute(ctx, j)
				}
			}
		}
	}()
}

// Wait blocks until the worker goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) take() *job {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.pending
	c.pending = nil
	return j
}

// skip resolves a job that never ran.
func (c *Coordinator) skip(j *job) {
	c.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindJobSkip, Comp: "coord",
		RunID: j.req.RunID, Job: uint64(j.id)})
	c.finish(j, time.Now(), Outcome{ID: j.id, RunID: j.req.RunID, Status: StatusSuperseded})
}

func (c *Coordinator) execute(ctx context.Context, j *job) {
	if !c.sup.IsCurrent(j.id) {
		c.skip(j)
		return
	}

	jctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	j.cancel = cancel
	c.running = j
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = nil
		c.mu.Unlock()
		cancel()
	}()

	started := time.Now()
	current := func() bool {
		return jctx.Err() == nil && c.sup.IsCurrent(j.id)
	}
	err := c.runner.Run(jctx, current, j.req, gatedSink{c: c, j: j, ctx: jctx})

	out := Outcome{ID: j.id, RunID: j.req.RunID, Status: StatusDone, Elapsed: time.Since(started)}
	switch {
	case errors.Is(err, pipeline.ErrSuperseded):
		out.Status = StatusSuperseded
	case err != nil:
		out.Status = StatusError
		out.Err = err
	}
	c.finish(j, started, out)
}

// finish records the job, then resolves its ticket.
func (c *Coordinator) finish(j *job, started time.Time, out Outcome) {
	defer func() { j.done <- out }()

	if c.recorder == nil {
		return
	}
	rec := RunRecord{
		Job:       j.id,
		RunID:     j.req.RunID,
		Model:     j.req.ModelID,
		Precision: j.req.PrecisionMode,
		Sentences: len(j.req.Sentences),
		Status:    out.Status,
		Started:   started,
		Elapsed:   out.Elapsed,
	}
	if out.Err != nil {
		rec.Message = out.Err.Error()
	}
	if err := c.recorder.RecordRun(rec); err != nil {
		logging.Warn("coord: failed to record run", "run", j.req.RunID, "err", err)
		c.events.Error(otel.KindStoreError, "coord", err)
	}
}
