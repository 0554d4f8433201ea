package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
)

const queueSize = 64

type messageKind int

const (
	msgProgress messageKind = iota
	msgLog
	msgDone
)

type message struct {
	kind   messageKind
	patch  domain.Patch
	log    domain.LogEntry
	result any
	err    error
}

// Adapter invokes one tool handler through an Isolate.
type Adapter struct {
	isolate  Isolate
	source   string
	require  func(ctx context.Context, id string) (any, error)
	onLog    func(domain.LogEntry)
	deadline time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRequire sets the capability resolver exposed to handlers.
func WithRequire(fn func(ctx context.Context, id string) (any, error)) Option {
	return func(a *Adapter) {
		a.require = fn
	}
}

// WithLogSink receives the diagnostic output of handlers.
func WithLogSink(fn func(domain.LogEntry)) Option {
	return func(a *Adapter) {
		a.onLog = fn
	}
}

// WithDeadline bounds each invocation. Zero, the default, means no bound.
func WithDeadline(d time.Duration) Option {
	return func(a *Adapter) {
		a.deadline = d
	}
}

// WithLogger configures a logger for the Adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// New creates an adapter running source in isolate.
func New(isolate Isolate, source string, opts ...Option) *Adapter {
	a := &Adapter{
		isolate: isolate,
		source:  source,
		logger:  logging.NewNop(),
		now:     time.Now,
		require: func(_ context.Context, id string) (any, error) {
			return nil, &domain.CapabilityError{ID: id, Err: errors.New("no capabilities available")}
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke runs the handler against req.Snapshot.
//
// Every progress patch is passed to onProgress, in emission order, before
// Invoke returns. The terminal patch is returned for the caller to merge last.
// If onProgress rejects a patch, later patches of the run are discarded and
// the run fails with an error matching both domain.ErrHandlerThrew and
// domain.ErrMergeContract.
func (a *Adapter) Invoke(ctx context.Context, req domain.ExecutionRequest, onProgress func(domain.Patch) error) (domain.Patch, error) {
	parent := ctx
	if a.deadline > 0 {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithTimeout(ctx, a.deadline)
		defer cancelDeadline()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan message, queueSize)
	stop := make(chan struct{})
	defer close(stop)

	send := func(m message) bool {
		select {
		case <-stop:
			return false
		default:
		}
		select {
		case queue <- m:
			return true
		case <-stop:
			return false
		}
	}

	env := Env{
		Inputs:  req.Snapshot.Clone(),
		Trigger: req.Trigger,
		Progress: func(p domain.Patch) {
			if !send(message{kind: msgProgress, patch: clonePatch(p)}) {
				a.logger.Debug("dropping progress after settlement", "seq", req.Seq)
			}
		},
		Require: a.require,
		Log: func(level domain.LogLevel, msg string) {
			send(message{kind: msgLog, log: domain.LogEntry{Time: a.now(), Level: level, Message: msg}})
		},
	}

	go func() {
		result, err := a.run(runCtx, env)
		send(message{kind: msgDone, result: result, err: err})
	}()

	var violation error
	for {
		select {
		case <-ctx.Done():
			return nil, a.interrupted(parent, ctx)

		case m := <-queue:
			switch m.kind {
			case msgLog:
				if a.onLog != nil {
					a.onLog(m.log)
				}
			case msgProgress:
				if violation != nil {
					continue
				}
				if err := onProgress(m.patch); err != nil {
					violation = err
					a.logger.Warn("progress patch rejected", "seq", req.Seq, "error", err)
				}
			case msgDone:
				if violation != nil {
					return nil, Violation(violation)
				}
				if m.err != nil {
					if ctx.Err() != nil {
						return nil, a.interrupted(parent, ctx)
					}
					return nil, asHandlerError(m.err)
				}
				patch, err := ToPatch(m.result)
				if err != nil {
					return nil, Violation(err)
				}
				return patch, nil
			}
		}
	}
}

func (a *Adapter) run(ctx context.Context, env Env) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &domain.HandlerError{Message: fmt.Sprint(r), Stack: string(debug.Stack())}
		}
	}()
	return a.isolate.Run(ctx, a.source, env)
}

// interrupted reports why ctx ended: the adapter deadline is a handler
// failure, cancellation by the session is an isolation failure.
func (a *Adapter) interrupted(parent, ctx context.Context) error {
	if parent.Err() == nil {
		return &domain.HandlerError{
			Message: fmt.Sprintf("handler exceeded deadline of %s", a.deadline),
			Err:     ctx.Err(),
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrIsolation, parent.Err())
}

func asHandlerError(err error) error {
	if errors.Is(err, domain.ErrHandlerThrew) || errors.Is(err, domain.ErrIsolation) {
		return err
	}
	return &domain.HandlerError{Message: err.Error(), Err: err}
}

// Violation converts a rejected patch into a handler failure.
func Violation(err error) error {
	if !errors.Is(err, domain.ErrMergeContract) {
		err = fmt.Errorf("%w: %w", domain.ErrMergeContract, err)
	}
	return &domain.HandlerError{Message: err.Error(), Err: err}
}

// ToPatch converts a handler's terminal value into a patch. A nil result is
// an empty patch; anything that is not an object violates the contract.
func ToPatch(v any) (domain.Patch, error) {
	switch p := v.(type) {
	case nil:
		return domain.Patch{}, nil
	case domain.Patch:
		return p, nil
	case domain.Values:
		return domain.Patch(p), nil
	case map[string]any:
		return domain.Patch(p), nil
	}
	return nil, fmt.Errorf("%w: handler returned %T, want an object", domain.ErrMergeContract, v)
}

func clonePatch(p domain.Patch) domain.Patch {
	out := make(domain.Patch, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
