// Package dispatch decides when a tool handler runs.
//
// The Dispatcher is a small state machine:
//
//	Idle                 + trigger c → Running(n+1), start run(n+1, c)
//	Running(n)           + trigger c → RunningWithPending(n, c)
//	RunningWithPending   + trigger c → RunningWithPending(n, c)   (latest wins)
//	Running(n) settles, pending c    → Running(n+1), start run(n+1, c)
//	Running(n) settles, nothing queued → Idle
//
// An in-flight run is never preempted, and at most one run is in flight.
// A run that fails with domain.ErrIsolation, or Close, moves the dispatcher
// to the terminal Halted state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
)

// ErrHalted is returned by Trigger once the dispatcher is halted.
var ErrHalted = errors.New("dispatcher halted")

// State is the dispatcher state.
type State string

const (
	Idle               State = "idle"
	Running            State = "running"
	RunningWithPending State = "running_with_pending"
	Halted             State = "halted"
)

// Status is a point-in-time view of the dispatcher.
type Status struct {
	State   State  `json:"state"`
	Seq     uint64 `json:"seq"`
	Pending string `json:"pending,omitempty"` // queued trigger id when RunningWithPending
	Err     error  `json:"-"`                 // halting error, if any
}

// RunFunc executes one run. It is never called concurrently with itself.
// trigger is domain.NoTrigger for forced runs.
type RunFunc func(ctx context.Context, seq uint64, trigger string) error

// Dispatcher serializes handler runs for one session.
type Dispatcher struct {
	run    RunFunc
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	seq        uint64
	pending    string
	idle       chan struct{}
	idleClosed bool
	haltErr    error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger configures a logger for the Dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates an idle dispatcher.
func New(run RunFunc, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		run:        run,
		logger:     logging.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		state:      Idle,
		idle:       make(chan struct{}),
		idleClosed: true,
	}
	close(d.idle)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trigger reports a change of widget id. Use domain.NoTrigger to force a run.
func (d *Dispatcher) Trigger(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case Halted:
		return ErrHalted
	case Idle:
		d.seq++
		d.state = Running
		d.idle = make(chan struct{})
		d.idleClosed = false
		d.wg.Add(1)
		go d.loop(d.seq, id)
	case Running, RunningWithPending:
		if d.state == RunningWithPending {
			d.logger.Debug("coalescing trigger", "dropped", d.pending, "trigger", id)
		}
		d.state = RunningWithPending
		d.pending = id
	}
	return nil
}

func (d *Dispatcher) loop(seq uint64, trigger string) {
	defer d.wg.Done()
	for {
		err := d.safeRun(seq, trigger)

		d.mu.Lock()
		if errors.Is(err, domain.ErrIsolation) && d.state != Halted {
			d.logger.Error("halting dispatcher", "seq", seq, "error", err)
			d.state = Halted
			d.haltErr = err
		}
		switch d.state {
		case Halted:
			d.pending = ""
			d.markIdle()
			d.mu.Unlock()
			return
		case RunningWithPending:
			d.seq++
			seq, trigger = d.seq, d.pending
			d.pending = ""
			d.state = Running
			d.mu.Unlock()
		default:
			d.state = Idle
			d.markIdle()
			d.mu.Unlock()
			return
		}
	}
}

func (d *Dispatcher) safeRun(seq uint64, trigger string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("run panicked", "seq", seq, "panic", r)
			err = &domain.HandlerError{Message: fmt.Sprint(r), Stack: string(debug.Stack())}
		}
	}()
	return d.run(d.ctx, seq, trigger)
}

func (d *Dispatcher) markIdle() {
	if !d.idleClosed {
		close(d.idle)
		d.idleClosed = true
	}
}

// Status returns the current state.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{State: d.state, Seq: d.seq, Pending: d.pending, Err: d.haltErr}
}

// Wait blocks until the dispatcher is Idle or Halted, or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close halts the dispatcher, cancels the context of the in-flight run and
// waits for it to return.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.state != Halted {
		if d.state == Idle {
			d.markIdle()
		}
		d.state = Halted
		d.pending = ""
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
