package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/toolbake"
	"github.com/aretw0/toolbake/internal/config"
	"github.com/aretw0/toolbake/pkg/adapters/file"
	"github.com/aretw0/toolbake/pkg/adapters/memory"
	"github.com/aretw0/toolbake/pkg/adapters/process"
	"github.com/aretw0/toolbake/pkg/adapters/redis"
	"github.com/aretw0/toolbake/pkg/loader"
	"github.com/aretw0/toolbake/pkg/observability"
	"github.com/aretw0/toolbake/pkg/persistence/middleware"
	"github.com/aretw0/toolbake/pkg/ports"
)

// App is an engine built from a project configuration, plus the resources
// it owns.
type App struct {
	Engine *toolbake.Engine
	Config config.Config
	Logger *slog.Logger
	// Snapshots is the session store, wrapped with masking and encryption.
	Snapshots ports.SnapshotStore

	redis *backend.Client
}

// BuildOptions tunes Build beyond what the config file holds.
type BuildOptions struct {
	Debug bool
	// Quiet keeps only warnings and errors unless Debug is set.
	Quiet bool
	// Registerer receives the runtime metrics. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Logger overrides the logger derived from the config log level.
	Logger *slog.Logger
}

// Build initializes an engine with standard CLI conventions.
func Build(cfg config.Config, opts BuildOptions) (*App, error) {
	app := &App{Config: cfg, Logger: opts.Logger}
	if app.Logger == nil {
		app.Logger = createLogger(cfg.LogLevel, opts.Debug, opts.Quiet)
	}
	logger := app.Logger

	if cfg.Sessions.Store == config.StoreRedis || cfg.Redis.Tools || cfg.Redis.Lock {
		app.redis = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	engineOpts := []toolbake.Option{
		toolbake.WithLogger(logger),
		toolbake.WithDeadline(cfg.Runtime.Deadline),
		toolbake.WithLogCapacity(cfg.Runtime.LogCapacity),
		toolbake.WithNoticeTTL(cfg.Runtime.NoticeTTL),
	}

	store, err := snapshotStore(cfg, app.redis)
	if err != nil {
		return nil, app.fail(err)
	}
	app.Snapshots = store
	engineOpts = append(engineOpts, toolbake.WithSnapshotStore(store))

	if app.redis != nil {
		prefix := redisPrefix(cfg)
		if cfg.Redis.Tools {
			engineOpts = append(engineOpts, toolbake.WithRepository(redis.NewRepository(app.redis, prefix+"tool:")))
		}
		if cfg.Redis.Lock {
			engineOpts = append(engineOpts, toolbake.WithLocker(redis.NewLocker(app.redis, prefix+"lock:")))
		}
	}

	if cfg.Runtime.Processes != "" {
		procs, err := process.LoadConfig(cfg.Runtime.Processes)
		if err != nil {
			return nil, app.fail(err)
		}
		runner := process.NewRunner(
			process.WithRegistry(procs),
			process.WithBaseDir(filepath.Dir(cfg.Runtime.Processes)),
			process.WithLogger(logger),
		)
		engineOpts = append(engineOpts, toolbake.WithCapabilities(runner.Entries()...))
	}

	if cfg.Runtime.Remote {
		engineOpts = append(engineOpts, toolbake.WithFetcher(loader.NewHTTPFetcher()))
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, app.fail(fmt.Errorf("failed to register metrics: %w", err))
	}
	engineOpts = append(engineOpts, toolbake.WithLifecycleHooks(metrics.Hooks()))
	if opts.Debug {
		engineOpts = append(engineOpts, toolbake.WithLifecycleHooks(createDebugHooks(logger)))
	}

	eng, err := toolbake.New(cfg.Tools, engineOpts...)
	if err != nil {
		return nil, app.fail(fmt.Errorf("error initializing engine: %w", err))
	}
	app.Engine = eng
	return app, nil
}

// Close shuts down every live session and releases the Redis client.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.Engine != nil {
		err = a.Engine.Close(ctx)
	}
	if a.redis != nil {
		err = errors.Join(err, a.redis.Close())
	}
	return err
}

func (a *App) fail(err error) error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return err
}

func redisPrefix(cfg config.Config) string {
	if cfg.Redis.Prefix != "" {
		return cfg.Redis.Prefix
	}
	return "toolbake:"
}

// snapshotStore picks the session store and wraps it with masking and
// encryption. Masking runs first so redacted values are never encrypted.
func snapshotStore(cfg config.Config, client *backend.Client) (ports.SnapshotStore, error) {
	var store ports.SnapshotStore
	switch cfg.Sessions.Store {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreFile, "":
		store = file.New(cfg.Sessions.Path)
	case config.StoreRedis:
		store = redis.NewFromClient(client,
			redis.WithPrefix(redisPrefix(cfg)+"session:"),
			redis.WithTTL(cfg.Sessions.TTL),
		)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Sessions.Store)
	}

	var mws []middleware.Middleware
	if len(cfg.Sessions.RedactPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Sessions.RedactPatterns))
	}
	if cfg.Sessions.EncryptionKey != "" {
		active, err := decodeKey(cfg.Sessions.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption_key: %w", err)
		}
		fallbacks := make([][]byte, 0, len(cfg.Sessions.FallbackKeys))
		for i, k := range cfg.Sessions.FallbackKeys {
			key, err := decodeKey(k)
			if err != nil {
				return nil, fmt.Errorf("fallback_keys[%d]: %w", i, err)
			}
			fallbacks = append(fallbacks, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		}))
	}
	return middleware.Chain(store, mws...), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
