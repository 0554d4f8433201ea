// Package loader resolves capability identifiers to module handles.
//
// An identifier is either a name in the build-time manifest or a fully
// qualified http(s) module reference. Loads are single-flight: concurrent
// resolutions of the same identifier share one underlying load. A successful
// load is cached for the lifetime of the Loader; a failed one is not, so the
// next resolution retries.
package loader

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/registry"
)

// ErrClosed is returned by Resolve after Close.
var ErrClosed = errors.New("loader closed")

// ErrNoFetcher is returned for remote references when no Fetcher is configured.
var ErrNoFetcher = errors.New("remote modules disabled")

// Fetcher retrieves remote module-shaped resources.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*Script, error)
}

// Script is the source of a remote module. Isolates decide how to evaluate it.
type Script struct {
	URL    string
	Source string
}

type entry struct {
	state      domain.ModuleState
	handle     any
	err        error
	provenance string
	loadedAt   time.Time
}

// Loader is a session-scoped module cache.
type Loader struct {
	manifest *registry.Manifest
	fetcher  Fetcher
	logger   *slog.Logger
	onLoad   func(context.Context, *domain.CapabilityEvent)

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	entries   map[string]*entry
	closed    bool
	listeners []func(loading []string)

	notifyMu sync.Mutex
}

// Option configures a Loader.
type Option func(*Loader)

// WithFetcher enables remote module references.
func WithFetcher(f Fetcher) Option {
	return func(l *Loader) {
		l.fetcher = f
	}
}

// WithLogger configures a logger for the Loader.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithLoadHook registers a callback invoked after every settled load.
func WithLoadHook(fn func(context.Context, *domain.CapabilityEvent)) Option {
	return func(l *Loader) {
		l.onLoad = fn
	}
}

// New creates a Loader backed by the given manifest. A nil manifest is empty.
func New(manifest *registry.Manifest, opts ...Option) *Loader {
	if manifest == nil {
		manifest = registry.NewManifest()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		manifest: manifest,
		logger:   logging.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve returns the handle for id, loading it if needed.
//
// Cancelling ctx only abandons the wait: the shared load keeps running for
// the other waiters and its result is still cached.
func (l *Loader) Resolve(ctx context.Context, id string) (any, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, &domain.CapabilityError{ID: id, Err: ErrClosed}
	}
	if e, ok := l.entries[id]; ok && e.state == domain.ModuleLoaded {
		h := e.handle
		l.mu.RUnlock()
		return h, nil
	}
	l.mu.RUnlock()

	ch := l.group.DoChan(id, func() (any, error) {
		return l.load(id)
	})

	select {
	case <-ctx.Done():
		return nil, &domain.CapabilityError{ID: id, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, &domain.CapabilityError{ID: id, Err: res.Err}
		}
		return res.Val, nil
	}
}

func (l *Loader) load(id string) (handle any, err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	// A load may have settled between the cache check and joining the group.
	if e, ok := l.entries[id]; ok && e.state == domain.ModuleLoaded {
		l.mu.Unlock()
		return e.handle, nil
	}
	e := &entry{state: domain.ModuleLoading}
	l.entries[id] = e
	l.mu.Unlock()
	l.notify()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			handle, err = nil, fmt.Errorf("loader panic: %v", r)
		}
		l.settle(id, e, handle, err, time.Since(start))
	}()

	loadFn, provenance, err := l.source(id)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	e.provenance = provenance
	l.mu.Unlock()

	l.logger.Debug("loading capability", "id", id, "provenance", provenance)
	return loadFn(l.ctx)
}

func (l *Loader) source(id string) (registry.LoadFunc, string, error) {
	if entry, err := l.manifest.Lookup(id); err == nil {
		return entry.Load, entry.URL, nil
	}
	if !IsRemote(id) {
		return nil, "", fmt.Errorf("%w: %s", registry.ErrNotRegistered, id)
	}
	if l.fetcher == nil {
		return nil, "", ErrNoFetcher
	}
	return func(ctx context.Context) (any, error) {
		return l.fetcher.Fetch(ctx, id)
	}, id, nil
}

func (l *Loader) settle(id string, e *entry, handle any, err error, elapsed time.Duration) {
	l.mu.Lock()
	if err != nil {
		e.state = domain.ModuleFailed
		e.err = err
	} else {
		e.state = domain.ModuleLoaded
		e.handle = handle
		e.loadedAt = time.Now()
	}
	closed := l.closed
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("capability load failed", "id", id, "error", err)
	} else {
		l.logger.Debug("capability loaded", "id", id, "duration", elapsed)
	}
	if closed && err == nil {
		closeHandle(l.logger, id, handle)
	}
	l.notify()

	if l.onLoad != nil {
		l.onLoad(l.ctx, &domain.CapabilityEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCapabilityLoad},
			ModuleID:  id,
			Duration:  elapsed,
			Err:       err,
		})
	}
}

// Loading returns the ids currently being loaded, sorted.
func (l *Loader) Loading() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var ids []string
	for id, e := range l.entries {
		if e.state == domain.ModuleLoading {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Entries describes the cache, sorted by id.
func (l *Loader) Entries() []domain.ModuleCacheEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ModuleCacheEntry, 0, len(l.entries))
	for id, e := range l.entries {
		ce := domain.ModuleCacheEntry{
			ID:         id,
			State:      e.state,
			Provenance: e.provenance,
			LoadedAt:   e.loadedAt,
		}
		if e.err != nil {
			ce.Error = e.err.Error()
		}
		out = append(out, ce)
	}
	slices.SortFunc(out, func(a, b domain.ModuleCacheEntry) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// OnChange registers fn to receive the loading set whenever it changes.
func (l *Loader) OnChange(fn func(loading []string)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Loader) notify() {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()
	l.mu.RLock()
	listeners := slices.Clone(l.listeners)
	l.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	loading := l.Loading()
	for _, fn := range listeners {
		fn(loading)
	}
}

// Close cancels in-flight loads and releases every cached handle that
// implements io.Closer. It is safe to call more than once.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	entries := l.entries
	l.entries = make(map[string]*entry)
	l.mu.Unlock()

	l.cancel()

	var errs []error
	for id, e := range entries {
		if e.state != domain.ModuleLoaded {
			continue
		}
		if err := closeHandle(l.logger, id, e.handle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeHandle(logger *slog.Logger, id string, handle any) error {
	c, ok := handle.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to close capability", "id", id, "error", err)
		return fmt.Errorf("close %s: %w", id, err)
	}
	return nil
}

// IsRemote reports whether id is a fully qualified http(s) reference.
func IsRemote(id string) bool {
	u, err := url.Parse(id)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
