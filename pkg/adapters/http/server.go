// Package http exposes a session manager over a JSON and Server-Sent Events API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/toolbake"
	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/ports"
	"github.com/aretw0/toolbake/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server implements the HTTP API on top of a session manager.
type Server struct {
	manager  *session.Manager
	streams  *StreamManager
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and stream logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreamManager shares a catalog event broadcaster with the caller.
func WithStreamManager(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// NewServer creates a new Server instance.
func NewServer(mgr *session.Manager, opts ...Option) *Server {
	s := &Server{
		manager:  mgr,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager()
	}
	return s
}

// Streams returns the catalog event broadcaster.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// NewHandler returns the routed API.
func NewHandler(mgr *session.Manager, opts ...Option) http.Handler {
	return NewServer(mgr, opts...).Handler()
}

// Handler builds the chi router for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeCatalog)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/tools", func(r chi.Router) {
		r.Get("/", s.ListTools)
		r.Get("/{toolID}", s.GetTool)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.OpenSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Put("/widgets/{widgetID}", s.EditWidget)
			r.Post("/run", s.RunSession)
			r.Get("/events", s.SubscribeSession)
		})
	})
	return r
}

// enableCORS adds CORS headers to every response.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionView is the JSON body describing one session.
type SessionView struct {
	ID      string         `json:"id"`
	Status  session.Status `json:"status"`
	Values  domain.Values  `json:"values"`
	Outputs []string       `json:"outputs"`
}

type openRequest struct {
	ToolID string `json:"tool_id"`
}

type editRequest struct {
	Value any `json:"value"`
}

type editResponse struct {
	Changed []string `json:"changed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "toolbake",
		"version":  strings.TrimSpace(toolbake.Version),
		"sessions": len(s.manager.List()),
	})
}

func (s *Server) ListTools(w http.ResponseWriter, r *http.Request) {
	ids, err := s.manager.Tools().List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) GetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.manager.Tools().Get(r.Context(), chi.URLParam(r, "toolID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.manager.List()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToolID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must carry tool_id"})
		return
	}

	sess, err := s.manager.Open(r.Context(), req.ToolID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(sess))
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) EditWidget(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	widgetID := chi.URLParam(r, "widgetID")

	var req editRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, int64(maxInputSize())*4))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid body: %v", err)})
		return
	}
	value, err := sanitizeValue(req.Value)
	if err != nil {
		s.logger.Warn("input rejected", "session_id", sessionID, "widget", widgetID, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	sess, err := s.manager.Resume(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	changed, err := sess.Edit(widgetID, value)
	if err != nil {
		s.fail(w, err)
		return
	}
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, editResponse{Changed: changed})
}

// RunSession forces a run. With ?wait=true it responds after the dispatcher
// is idle and returns the resulting view.
func (s *Server) RunSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := sess.Run(); err != nil {
		s.fail(w, err)
		return
	}
	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, view(sess))
		return
	}
	if err := sess.Wait(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

// SubscribeSession streams the session's aggregated observability events.
func (s *Server) SubscribeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, err)
		return
	}

	flusher, ok := startStream(w)
	if !ok {
		return
	}

	events := sess.Observability().Watch(r.Context(), 64)
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("failed to encode event", "session_id", sess.ID(), "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}

// SubscribeCatalog streams tool catalog changes published on the StreamManager.
func (s *Server) SubscribeCatalog(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	ch, unsubscribe := s.streams.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case id, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: tool\ndata: %s\n\n", id)
			flusher.Flush()
		}
	}
}

func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	return flusher, true
}

func view(sess *session.Session) SessionView {
	outputs := sess.Tool().Outputs()
	if outputs == nil {
		outputs = []string{}
	}
	return SessionView{
		ID:      sess.ID(),
		Status:  sess.Status(),
		Values:  sess.Values(),
		Outputs: outputs,
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrToolNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownWidget),
		errors.Is(err, domain.ErrMergeContract),
		errors.Is(err, domain.ErrInvalidTool):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StreamManager fans tool catalog changes out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
	}
}

// Subscribe registers a new listener.
func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Broadcast sends a message to every listener, dropping it for slow ones.
func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// Drop message if blocked
		}
	}
}

// Relay broadcasts every id received from a watchable repository until the
// channel closes. It returns false when the repository cannot be watched.
func (sm *StreamManager) Relay(ctx context.Context, repo ports.ToolRepository) (bool, error) {
	w, ok := repo.(ports.Watchable)
	if !ok {
		return false, nil
	}
	ch, err := w.Watch(ctx)
	if err != nil {
		return true, err
	}
	go func() {
		for id := range ch {
			sm.Broadcast(id)
		}
	}()
	return true, nil
}
