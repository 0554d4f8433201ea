package sandbox

import (
	"context"

	"github.com/aretw0/toolbake/pkg/domain"
)

// Isolate is the host isolation primitive: it evaluates source with exactly
// the globals of env and returns the handler's terminal value.
//
// Implementations report handler failures as *domain.HandlerError and
// failures of the primitive itself as errors wrapping domain.ErrIsolation.
type Isolate interface {
	Run(ctx context.Context, source string, env Env) (any, error)
}

// Env is everything a handler may reach.
type Env struct {
	// Inputs is a private copy of the store snapshot.
	Inputs domain.Values
	// Trigger is the changed widget id, or domain.NoTrigger.
	Trigger string
	// Progress delivers a partial patch. It may be called any number of times
	// before the handler settles.
	Progress func(domain.Patch)
	// Require resolves a capability by name or remote module reference.
	Require func(ctx context.Context, id string) (any, error)
	// Log forwards diagnostic output to the log panel.
	Log func(level domain.LogLevel, msg string)
}

// IsolateFunc adapts a function to the Isolate interface.
type IsolateFunc func(ctx context.Context, source string, env Env) (any, error)

// Run calls f.
func (f IsolateFunc) Run(ctx context.Context, source string, env Env) (any, error) {
	return f(ctx, source, env)
}
