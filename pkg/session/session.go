package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/dispatch"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/loader"
	"github.com/aretw0/toolbake/pkg/observability"
	"github.com/aretw0/toolbake/pkg/sandbox"
	"github.com/aretw0/toolbake/pkg/sandbox/govm"
	"github.com/aretw0/toolbake/pkg/sandbox/jsvm"
	"github.com/aretw0/toolbake/pkg/state"
)

// Status is a point-in-time view of a session.
type Status struct {
	ID         string                 `json:"id"`
	ToolID     string                 `json:"tool_id"`
	ToolUID    string                 `json:"tool_uid,omitempty"`
	Dispatcher dispatch.Status        `json:"dispatcher"`
	Runs       uint64                 `json:"runs"`
	LastRun    *domain.ExecutionRun   `json:"last_run,omitempty"`
	View       observability.Snapshot `json:"view"`
}

// Session is the runtime of one tool.
type Session struct {
	id     string
	tool   *domain.Tool
	cfg    Config
	logger *slog.Logger

	store      *state.Store
	loader     *loader.Loader
	adapter    *sandbox.Adapter
	dispatcher *dispatch.Dispatcher
	obs        *observability.Aggregator

	persistMu sync.Mutex

	mu      sync.Mutex
	current *domain.ExecutionRun
	last    *domain.ExecutionRun
	runs    uint64
	closed  bool
}

// New opens a session for tool.
func New(tool *domain.Tool, cfg Config) (*Session, error) {
	if err := tool.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	s := &Session{
		id:     cfg.ID,
		tool:   tool,
		cfg:    cfg,
		logger: cfg.Logger.With("session_id", cfg.ID, "tool_id", tool.ID),
	}

	var storeOpts []state.Option
	if cfg.Catalog != nil {
		storeOpts = append(storeOpts, state.WithCatalog(cfg.Catalog))
	}
	store, err := state.New(tool, storeOpts...)
	if err != nil {
		return nil, err
	}
	s.store = store

	isolate, err := s.isolate()
	if err != nil {
		return nil, err
	}

	var aggOpts []observability.AggregatorOption
	if cfg.LogCapacity > 0 {
		aggOpts = append(aggOpts, observability.WithLogCapacity(cfg.LogCapacity))
	}
	if cfg.NoticeTTL > 0 {
		aggOpts = append(aggOpts, observability.WithNoticeOptions(observability.WithTTL(cfg.NoticeTTL)))
	}
	s.obs = observability.NewAggregator(aggOpts...)

	loaderOpts := []loader.Option{
		loader.WithLogger(s.logger),
		loader.WithLoadHook(s.capabilityLoaded),
	}
	if cfg.Fetcher != nil {
		loaderOpts = append(loaderOpts, loader.WithFetcher(cfg.Fetcher))
	}
	s.loader = loader.New(cfg.Manifest, loaderOpts...)
	s.loader.OnChange(s.obs.Packages.Update)

	s.adapter = sandbox.New(isolate, s.source(),
		sandbox.WithRequire(s.loader.Resolve),
		sandbox.WithLogSink(s.appendLog),
		sandbox.WithDeadline(cfg.Deadline),
		sandbox.WithLogger(s.logger),
	)
	s.dispatcher = dispatch.New(s.execute, dispatch.WithLogger(s.logger))

	s.store.Subscribe(func(c state.Change) {
		s.obs.Publish(observability.Event{Type: observability.EventValues, Values: c.Values, Changed: c.Changed})
	})

	if cfg.Hooks.OnSessionOpen != nil {
		cfg.Hooks.OnSessionOpen(context.Background(), s.event(domain.EventSessionOpen))
	}
	s.logger.Debug("session opened")

	if cfg.InitialRun {
		if err := s.Run(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) isolate() (sandbox.Isolate, error) {
	lang := s.tool.EffectiveLanguage()
	if iso, ok := s.cfg.Isolates[lang]; ok && iso != nil {
		return iso, nil
	}
	switch lang {
	case domain.LanguageJavaScript:
		return jsvm.New(jsvm.WithLogger(s.logger)), nil
	case domain.LanguageGo:
		return govm.New(govm.WithLogger(s.logger)), nil
	}
	return nil, fmt.Errorf("%w: no isolate for language %q", domain.ErrInvalidTool, lang)
}

func (s *Session) source() string {
	if s.cfg.GlobalScript == "" || s.tool.EffectiveLanguage() != domain.LanguageJavaScript {
		return s.tool.Handler
	}
	return s.cfg.GlobalScript + "\n;\n" + s.tool.Handler
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Tool returns the tool of the session.
func (s *Session) Tool() *domain.Tool { return s.tool }

// Observability returns the session's projections.
func (s *Session) Observability() *observability.Aggregator { return s.obs }

// Get returns the current value of a widget.
func (s *Session) Get(id string) (any, bool) { return s.store.Get(id) }

// Values returns a copy of all widget values.
func (s *Session) Values() domain.Values { return s.store.Snapshot() }

// Edit applies a user edit and triggers a run if the value changed.
func (s *Session) Edit(id string, value any) ([]string, error) {
	return s.EditMany(domain.Patch{id: value})
}

// EditMany applies several user edits atomically. The changed ids are
// returned sorted and reported to the dispatcher in that order: from idle the
// first sorted id starts a run and the rest coalesce, so the follow-up run
// sees the alphabetically last changed id as its trigger. Callers that need a
// specific trigger should use Edit for that widget last.
func (s *Session) EditMany(patch domain.Patch) ([]string, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	for id := range patch {
		if _, ok := s.tool.Widget(id); !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownWidget, id)
		}
	}
	changed, err := s.store.SetMany(patch)
	if err != nil {
		return nil, err
	}
	for _, id := range changed {
		if err := s.dispatcher.Trigger(id); err != nil {
			return changed, s.halted(err)
		}
	}
	if len(changed) > 0 {
		s.persist()
	}
	return changed, nil
}

// Run forces a run with no specific trigger.
func (s *Session) Run() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.halted(s.dispatcher.Trigger(domain.NoTrigger))
}

// Wait blocks until no run is in flight or pending.
func (s *Session) Wait(ctx context.Context) error {
	return s.dispatcher.Wait(ctx)
}

// Restore loads persisted values without triggering a run.
func (s *Session) Restore(values domain.Values) error {
	_, err := s.store.Restore(values)
	return err
}

// Snapshot returns the persistable state of the session.
func (s *Session) Snapshot() *domain.SessionSnapshot {
	return &domain.SessionSnapshot{
		SessionID: s.id,
		ToolID:    s.tool.ID,
		ToolUID:   s.tool.UID,
		Values:    s.store.Snapshot(),
		UpdatedAt: time.Now().UTC(),
	}
}

// Status returns a view of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	var last *domain.ExecutionRun
	if s.last != nil {
		cp := *s.last
		last = &cp
	}
	runs := s.runs
	s.mu.Unlock()

	return Status{
		ID:         s.id,
		ToolID:     s.tool.ID,
		ToolUID:    s.tool.UID,
		Dispatcher: s.dispatcher.Status(),
		Runs:       runs,
		LastRun:    last,
		View:       s.obs.Snapshot(),
	}
}

// Entries describes the session's module cache.
func (s *Session) Entries() []domain.ModuleCacheEntry {
	return s.loader.Entries()
}

// Close tears the session down: the dispatcher is halted, capability handles
// are released and timers are stopped. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.dispatcher.Close()
	err := s.loader.Close()
	s.obs.Close()

	if s.cfg.Hooks.OnSessionClose != nil {
		s.cfg.Hooks.OnSessionClose(context.Background(), s.event(domain.EventSessionClose))
	}
	s.logger.Debug("session closed")
	return err
}

func (s *Session) usable() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return domain.ErrSessionClosed
	}
	if st := s.dispatcher.Status(); st.State == dispatch.Halted {
		return s.halted(dispatch.ErrHalted)
	}
	return nil
}

func (s *Session) halted(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dispatch.ErrHalted) {
		if cause := s.dispatcher.Status().Err; cause != nil {
			return fmt.Errorf("%w: %w", domain.ErrSessionClosed, cause)
		}
		return domain.ErrSessionClosed
	}
	return err
}

func (s *Session) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, SessionID: s.id, ToolID: s.tool.ID}
}

// execute is the dispatcher's RunFunc.
func (s *Session) execute(ctx context.Context, seq uint64, trigger string) error {
	req := domain.ExecutionRequest{Seq: seq, Trigger: trigger, Snapshot: s.store.Snapshot(), At: time.Now()}
	run := domain.NewRun(req)
	run.Start(req.At)

	s.mu.Lock()
	s.current = run
	s.runs++
	s.mu.Unlock()

	s.obs.Indicator.Set(domain.IndicatorRunning)
	if s.cfg.Hooks.OnRunStart != nil {
		s.cfg.Hooks.OnRunStart(ctx, &domain.RunEvent{EventBase: s.event(domain.EventRunStart), Run: run})
	}
	s.logger.Debug("run started", "seq", seq, "trigger", trigger, "run_id", run.ID)

	patch, err := s.adapter.Invoke(ctx, req, func(p domain.Patch) error {
		changed, err := s.store.SetMany(p)
		if err != nil {
			return err
		}
		s.mu.Lock()
		run.Progress++
		s.mu.Unlock()
		if s.cfg.Hooks.OnProgress != nil {
			s.cfg.Hooks.OnProgress(ctx, &domain.ProgressEvent{EventBase: s.event(domain.EventProgress), Seq: seq, Changed: changed})
		}
		return nil
	})
	if err == nil {
		if _, merr := s.store.SetMany(patch); merr != nil {
			err = sandbox.Violation(merr)
		}
	}

	s.mu.Lock()
	run.Finish(time.Now(), err)
	s.current = nil
	s.last = run
	finished := *run
	s.mu.Unlock()

	if err != nil {
		s.obs.Indicator.Set(domain.IndicatorError)
		s.obs.Notices.Set(domain.NoticeSource(err), domain.NoticeError, err.Error())
		s.logger.Warn("run failed", "seq", seq, "trigger", trigger, "error", err)
	} else {
		s.obs.Indicator.Set(domain.IndicatorSuccess)
		s.obs.Notices.Clear(domain.SourceExecution)
		s.logger.Debug("run succeeded", "seq", seq, "duration", run.Duration())
	}

	s.obs.Publish(observability.Event{Type: observability.EventRun, Run: &finished})
	if s.cfg.Hooks.OnRunFinish != nil {
		s.cfg.Hooks.OnRunFinish(ctx, &domain.RunEvent{EventBase: s.event(domain.EventRunFinish), Run: &finished})
	}
	if !errors.Is(err, domain.ErrIsolation) {
		s.persist()
	}
	return err
}

func (s *Session) appendLog(e domain.LogEntry) {
	s.obs.Logs.Append(e)
	s.mu.Lock()
	if s.current != nil {
		s.current.AppendLog(e)
	}
	s.mu.Unlock()
}

func (s *Session) capabilityLoaded(ctx context.Context, e *domain.CapabilityEvent) {
	e.SessionID = s.id
	e.ToolID = s.tool.ID
	if e.Err != nil {
		s.obs.Notices.Set(domain.SourceCapability, domain.NoticeWarning, (&domain.CapabilityError{ID: e.ModuleID, Err: e.Err}).Error())
	}
	if s.cfg.Hooks.OnCapabilityLoad != nil {
		s.cfg.Hooks.OnCapabilityLoad(ctx, e)
	}
}

func (s *Session) persist() {
	if s.cfg.Persist == nil {
		return
	}
	// Snapshot and save together so a stale snapshot never overwrites a newer one.
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.cfg.Persist(ctx, s.Snapshot()); err != nil {
		s.logger.Warn("failed to persist session snapshot", "error", err)
	}
}
