package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/loader"
	"github.com/aretw0/toolbake/pkg/registry"
	"github.com/aretw0/toolbake/pkg/sandbox"
	"github.com/aretw0/toolbake/pkg/widget"
)

// Config configures a Session. The zero value is usable.
type Config struct {
	// ID of the session. A random UUID is used when empty.
	ID string

	// Manifest lists the capabilities handlers may request by name.
	Manifest *registry.Manifest

	// Fetcher enables remote module references. Nil disables them.
	Fetcher loader.Fetcher

	// GlobalScript is prepended to JavaScript handlers.
	GlobalScript string

	// Isolates overrides the isolation primitive per handler language.
	Isolates map[string]sandbox.Isolate

	// Catalog resolves widget kinds. Defaults to widget.Default().
	Catalog *widget.Catalog

	// Deadline bounds each run. Zero means no bound.
	Deadline time.Duration

	// LogCapacity is the size of the log panel.
	LogCapacity int

	// NoticeTTL is the auto-dismiss delay of notices. Zero uses the default.
	NoticeTTL time.Duration

	// InitialRun forces a run when the session opens.
	InitialRun bool

	// Hooks receive lifecycle events.
	Hooks domain.LifecycleHooks

	// Persist is called with a snapshot after each user edit and each settled run.
	Persist func(ctx context.Context, snap *domain.SessionSnapshot) error

	Logger *slog.Logger
}
