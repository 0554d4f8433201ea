package toolbake

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/toolbake/internal/config"
	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/adapters/file"
	loamAdapter "github.com/aretw0/toolbake/pkg/adapters/loam"
	"github.com/aretw0/toolbake/pkg/capabilities"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/loader"
	"github.com/aretw0/toolbake/pkg/ports"
	"github.com/aretw0/toolbake/pkg/registry"
	"github.com/aretw0/toolbake/pkg/session"
)

// Engine is the high-level entry point for the ToolBake runtime.
// It binds a tool repository to a session manager.
type Engine struct {
	repo      ports.ToolRepository
	manager   *session.Manager
	snapshots ports.SnapshotStore
	locker    ports.DistributedLocker
	manifest  *registry.Manifest
	fetcher   loader.Fetcher
	deadline  time.Duration
	logCap    int
	noticeTTL time.Duration
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	Name      string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Chain(hooks)
	}
}

// WithRepository injects a tool repository, bypassing directory detection.
func WithRepository(repo ports.ToolRepository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithSnapshotStore enables session persistence and resume.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.snapshots = store
	}
}

// WithLocker serializes session operations across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithCapabilities adds entries to the built-in capability manifest.
func WithCapabilities(entries ...registry.Entry) Option {
	return func(e *Engine) {
		for _, entry := range entries {
			e.manifest.Register(entry)
		}
	}
}

// WithFetcher enables remote module references.
func WithFetcher(f loader.Fetcher) Option {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithDeadline bounds every run.
func WithDeadline(d time.Duration) Option {
	return func(e *Engine) {
		e.deadline = d
	}
}

// WithLogCapacity sets the size of each session's log panel.
func WithLogCapacity(n int) Option {
	return func(e *Engine) {
		e.logCap = n
	}
}

// WithNoticeTTL sets how long notices stay visible.
func WithNoticeTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.noticeTTL = d
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes an Engine over the tools found at repoPath.
// Directories holding markdown tools are read through a loam catalog; any
// other directory is read as JSON, YAML or TOML tool files. If WithRepository
// is provided, repoPath is only used as a label.
func New(repoPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		manifest: capabilities.Manifest(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.repo == nil {
		if repoPath == "" {
			return nil, fmt.Errorf("repoPath is required when no custom repository is provided")
		}
		absPath, err := filepath.Abs(repoPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		repo, err := OpenRepository(absPath)
		if err != nil {
			return nil, err
		}
		eng.repo = repo
	}
	if repoPath != "" {
		eng.Name = filepath.Base(repoPath)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("catalog", eng.Name)
	}

	mgrOpts := []session.Option{
		session.WithLogger(eng.logger),
		session.WithSessionConfig(session.Config{
			Manifest:    eng.manifest,
			Fetcher:     eng.fetcher,
			Deadline:    eng.deadline,
			LogCapacity: eng.logCap,
			NoticeTTL:   eng.noticeTTL,
			Hooks:       eng.hooks,
		}),
	}
	if eng.snapshots != nil {
		mgrOpts = append(mgrOpts, session.WithSnapshotStore(eng.snapshots))
	}
	if eng.locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(eng.locker))
	}
	if scripts, ok := eng.repo.(ports.ScriptStore); ok {
		mgrOpts = append(mgrOpts, session.WithScriptStore(scripts))
	}
	eng.manager = session.NewManager(eng.repo, mgrOpts...)
	return eng, nil
}

// OpenRepository picks the tool repository for a directory. Project config
// files are not read as tools.
func OpenRepository(dir string) (ports.ToolRepository, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			catalog, err := loamAdapter.Open(dir)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize loam: %w", err)
			}
			return catalog, nil
		}
	}
	repo := file.NewRepository(dir)
	repo.Exclude = config.FileNames
	return repo, nil
}

// Open starts a new session for the tool.
func (e *Engine) Open(ctx context.Context, toolID string) (*session.Session, error) {
	return e.manager.Open(ctx, toolID)
}

// Resume returns a live or persisted session.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*session.Session, error) {
	return e.manager.Resume(ctx, sessionID)
}

// Tools lists the ids of the available tools.
func (e *Engine) Tools(ctx context.Context) ([]string, error) {
	return e.repo.List(ctx)
}

// Tool returns a tool definition.
func (e *Engine) Tool(ctx context.Context, id string) (*domain.Tool, error) {
	return e.repo.Get(ctx, id)
}

// Watch returns a channel that signals when a tool changes.
// Returns error if the repository does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	if w, ok := e.repo.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, fmt.Errorf("current repository does not support watching")
}

// Manager returns the underlying session manager.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}

// Repository returns the tool repository used by the engine.
func (e *Engine) Repository() ports.ToolRepository {
	return e.repo
}

// Close tears down every live session.
func (e *Engine) Close(ctx context.Context) error {
	return e.manager.Shutdown(ctx)
}
