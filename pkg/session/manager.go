package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed session lock is held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager keeps live sessions and serializes their lifecycle per session id.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	tools     ports.ToolRepository
	snapshots ports.SnapshotStore
	scripts   ports.ScriptStore
	base      Config

	mu    sync.Mutex            // guards locks and live
	locks map[string]*lockEntry // active locks
	live  map[string]*Session

	locker  ports.DistributedLocker // optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager and its sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSnapshotStore persists session values so sessions can be resumed.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(m *Manager) {
		m.snapshots = store
	}
}

// WithScriptStore provides the global script prepended to JavaScript handlers.
func WithScriptStore(store ports.ScriptStore) Option {
	return func(m *Manager) {
		m.scripts = store
	}
}

// WithSessionConfig sets the base configuration of every opened session.
// ID, Logger, GlobalScript and Persist are managed by the Manager.
func WithSessionConfig(cfg Config) Option {
	return func(m *Manager) {
		m.base = cfg
	}
}

// NewManager creates a session manager backed by a tool repository.
func NewManager(tools ports.ToolRepository, opts ...Option) *Manager {
	m := &Manager{
		tools:   tools,
		locks:   make(map[string]*lockEntry),
		live:    make(map[string]*Session),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Open starts a new session for a tool.
func (m *Manager) Open(ctx context.Context, toolID string) (*Session, error) {
	id := uuid.NewString()
	var s *Session
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		tool, err := m.tools.Get(ctx, toolID)
		if err != nil {
			return err
		}
		s, err = m.start(ctx, id, tool, nil)
		return err
	})
	return s, err
}

// OpenAs resumes sessionID when it is live or persisted and otherwise starts
// it as a new session of toolID. A resumed session must belong to toolID.
func (m *Manager) OpenAs(ctx context.Context, sessionID, toolID string) (*Session, error) {
	if sessionID == "" {
		return m.Open(ctx, toolID)
	}
	s, err := m.Resume(ctx, sessionID)
	switch {
	case err == nil:
		if s.Tool().ID != toolID {
			return nil, fmt.Errorf("session %s belongs to tool %s: %w", sessionID, s.Tool().ID, domain.ErrInvalidTool)
		}
		return s, nil
	case !errors.Is(err, domain.ErrSessionNotFound):
		return nil, err
	}

	err = m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if live, ok := m.lookup(sessionID); ok {
			s = live
			return nil
		}
		tool, err := m.tools.Get(ctx, toolID)
		if err != nil {
			return err
		}
		s, err = m.start(ctx, sessionID, tool, nil)
		return err
	})
	return s, err
}

// Resume returns the live session with the given id, or rebuilds it from its
// persisted snapshot. Returns domain.ErrSessionNotFound if neither exists.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*Session, error) {
	var s *Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if live, ok := m.lookup(sessionID); ok {
			s = live
			return nil
		}
		if m.snapshots == nil {
			return domain.ErrSessionNotFound
		}
		snap, err := m.snapshots.Load(ctx, sessionID)
		if err != nil {
			return err
		}
		tool, err := m.tools.Get(ctx, snap.ToolID)
		if err != nil {
			return fmt.Errorf("resume %s: %w", sessionID, err)
		}
		if snap.ToolUID != "" && tool.UID != "" && snap.ToolUID != tool.UID {
			m.logger.Warn("tool changed since session was persisted",
				"session_id", sessionID,
				"tool_id", tool.ID,
				"snapshot_uid", snap.ToolUID,
				"tool_uid", tool.UID,
			)
		}
		s, err = m.start(ctx, sessionID, tool, snap.Values)
		return err
	})
	return s, err
}

func (m *Manager) start(ctx context.Context, id string, tool *domain.Tool, values domain.Values) (*Session, error) {
	cfg := m.base
	cfg.ID = id
	cfg.Logger = m.logger
	if m.scripts != nil {
		script, err := m.scripts.LoadGlobal(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load global script: %w", err)
		}
		cfg.GlobalScript = script
	}
	if m.snapshots != nil {
		cfg.Persist = func(ctx context.Context, snap *domain.SessionSnapshot) error {
			return m.snapshots.Save(ctx, snap.SessionID, snap)
		}
	}
	// The first run happens after restored values are in place.
	initial := cfg.InitialRun
	cfg.InitialRun = false

	s, err := New(tool, cfg)
	if err != nil {
		return nil, err
	}
	if values != nil {
		if err := s.Restore(values); err != nil {
			m.logger.Warn("discarding persisted values", "session_id", id, "error", err)
		}
	}
	if cfg.Persist != nil {
		if err := cfg.Persist(ctx, s.Snapshot()); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to initialize session: %w", err)
		}
	}
	if initial {
		if err := s.Run(); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	m.mu.Lock()
	m.live[id] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) lookup(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live[sessionID]
	return s, ok
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	if s, ok := m.lookup(sessionID); ok {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

// Close tears down a live session. Its snapshot, if any, is kept.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.closeLive(sessionID)
	})
}

func (m *Manager) closeLive(sessionID string) error {
	m.mu.Lock()
	s, ok := m.live[sessionID]
	delete(m.live, sessionID)
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	return s.Close()
}

// Delete closes the session and removes its snapshot.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		err := m.closeLive(sessionID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			err = nil
		}
		if m.snapshots != nil {
			err = errors.Join(err, m.snapshots.Delete(ctx, sessionID))
		}
		return err
	})
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// ListPersisted returns the ids of persisted sessions.
func (m *Manager) ListPersisted(ctx context.Context) ([]string, error) {
	if m.snapshots == nil {
		return nil, nil
	}
	return m.snapshots.List(ctx)
}

// Tools returns the tool repository.
func (m *Manager) Tools() ports.ToolRepository {
	return m.tools
}

// Shutdown closes every live session.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, id := range m.List() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
