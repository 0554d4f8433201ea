// Package mcp exposes every tool of a repository as a Model Context Protocol tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/toolbake"
	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/session"
	"github.com/aretw0/toolbake/pkg/widget"
)

// CatalogURI is the resource listing every tool definition.
const CatalogURI = "toolbake://tools"

// DefaultCallTimeout bounds one tool call.
const DefaultCallTimeout = 30 * time.Second

// Result is the structured content of a successful call.
type Result struct {
	Outputs domain.Values `json:"outputs"`
	Logs    []string      `json:"logs,omitempty"`
}

// Server wraps a session manager and exposes it as an MCP Server.
type Server struct {
	manager   *session.Manager
	mcpServer *server.MCPServer
	timeout   time.Duration
	logger    *slog.Logger

	mu    sync.Mutex
	names map[string]string // MCP tool name -> tool id
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCallTimeout bounds each tool call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer creates a new MCP Server instance. Call Sync to publish tools.
func NewServer(mgr *session.Manager, opts ...Option) *Server {
	s := &Server{
		manager: mgr,
		mcpServer: server.NewMCPServer("toolbake-mcp", strings.TrimSpace(toolbake.Version),
			server.WithToolCapabilities(true),
		),
		timeout: DefaultCallTimeout,
		logger:  logging.NewNop(),
		names:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sync replaces the published tools with the current repository content.
// Tools that fail to load are skipped and logged.
func (s *Server) Sync(ctx context.Context) error {
	ids, err := s.manager.Tools().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	names := make(map[string]string, len(ids))
	tools := make([]server.ServerTool, 0, len(ids))
	for _, id := range ids {
		tool, err := s.manager.Tools().Get(ctx, id)
		if err != nil {
			s.logger.Warn("skipping tool", "tool_id", id, "err", err)
			continue
		}
		name := ToolName(id)
		if prev, dup := names[name]; dup {
			s.logger.Warn("tool name collision", "name", name, "tool_id", id, "previous", prev)
			continue
		}
		names[name] = id
		tools = append(tools, server.ServerTool{
			Tool:    describe(name, tool),
			Handler: s.call(id),
		})
	}

	s.mu.Lock()
	s.names = names
	s.mu.Unlock()
	s.mcpServer.SetTools(tools...)
	return nil
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var invalidName = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ToolName maps a tool id to a valid MCP tool name.
func ToolName(id string) string {
	name := invalidName.ReplaceAllString(id, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// describe builds the MCP schema of a tool: one property per input widget.
func describe(name string, tool *domain.Tool) mcp.Tool {
	desc := tool.Description
	if desc == "" {
		desc = tool.Name
	}
	if desc == "" {
		desc = "Run the " + tool.ID + " tool."
	}
	opts := []mcp.ToolOption{mcp.WithDescription(desc)}

	for _, w := range tool.Widgets {
		if w.Role != domain.RoleInput {
			continue
		}
		kind, _, _ := widget.ParseRef(w.Kind)
		propDesc := w.Label
		if propDesc == "" {
			propDesc = w.ID
		}
		popts := []mcp.PropertyOption{mcp.Description(propDesc)}

		switch kind {
		case widget.KindButton, widget.KindLabel, widget.KindProgress:
			continue
		case widget.KindNumber:
			opts = append(opts, mcp.WithNumber(w.ID, popts...))
		case widget.KindToggle:
			opts = append(opts, mcp.WithBoolean(w.ID, popts...))
		case widget.KindSelect:
			if options := selectOptions(w.Config); len(options) > 0 {
				popts = append(popts, mcp.Enum(options...))
			}
			opts = append(opts, mcp.WithString(w.ID, popts...))
		case widget.KindJSON, widget.KindSortableList:
			popts[0] = mcp.Description(propDesc + " (JSON)")
			opts = append(opts, mcp.WithString(w.ID, popts...))
		default:
			opts = append(opts, mcp.WithString(w.ID, popts...))
		}
	}
	return mcp.NewTool(name, opts...)
}

func selectOptions(config map[string]any) []string {
	raw, ok := config["options"].([]any)
	if !ok {
		if strs, ok := config["options"].([]string); ok {
			return strs
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, o := range raw {
		if s, ok := o.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// call opens an ephemeral session, applies the arguments, forces a run and
// returns the output widgets once the dispatcher is idle.
func (s *Server) call(toolID string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		sess, err := s.manager.Open(ctx, toolID)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("failed to open session", err), nil
		}
		defer func() {
			if err := s.manager.Delete(context.WithoutCancel(ctx), sess.ID()); err != nil {
				s.logger.Warn("failed to discard MCP session", "session_id", sess.ID(), "err", err)
			}
		}()

		patch, err := arguments(sess.Tool(), request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(patch) > 0 {
			if _, err := sess.EditMany(patch); err != nil {
				return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
			}
		}
		if err := sess.Run(); err != nil {
			return mcp.NewToolResultErrorFromErr("run failed", err), nil
		}
		if err := sess.Wait(ctx); err != nil {
			return mcp.NewToolResultErrorFromErr("run did not finish", err), nil
		}

		st := sess.Status()
		if st.LastRun != nil && st.LastRun.State == domain.RunFailed {
			return mcp.NewToolResultError(st.LastRun.Error), nil
		}

		values := sess.Values()
		res := Result{Outputs: domain.Values{}}
		for _, id := range sess.Tool().Outputs() {
			res.Outputs[id] = values[id]
		}
		if st.LastRun != nil {
			for _, l := range st.LastRun.Logs {
				res.Logs = append(res.Logs, l.Message)
			}
		}
		text, err := json.Marshal(res.Outputs)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("failed to encode outputs", err), nil
		}
		return mcp.NewToolResultStructured(res, string(text)), nil
	}
}

// arguments converts call arguments into a patch of input widgets.
// JSON-shaped kinds accept their value encoded as a string.
func arguments(tool *domain.Tool, args map[string]any) (domain.Patch, error) {
	patch := make(domain.Patch, len(args))
	for id, v := range args {
		def, ok := tool.Widget(id)
		if !ok || def.Role != domain.RoleInput {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownWidget, id)
		}
		kind, _, _ := widget.ParseRef(def.Kind)
		if str, isStr := v.(string); isStr && (kind == widget.KindJSON || kind == widget.KindSortableList) {
			var decoded any
			if err := json.Unmarshal([]byte(str), &decoded); err != nil {
				return nil, fmt.Errorf("argument %s: %w", id, err)
			}
			v = decoded
		}
		patch[id] = v
	}
	return patch, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(CatalogURI, "Tool Catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.manager.Tools().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		tools := make([]*domain.Tool, 0, len(ids))
		for _, id := range ids {
			tool, err := s.manager.Tools().Get(ctx, id)
			if err != nil {
				continue
			}
			tools = append(tools, tool)
		}
		jsonBytes, err := json.Marshal(tools)
		if err != nil {
			return nil, err
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      CatalogURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

// ToolID returns the tool id published under an MCP tool name.
func (s *Server) ToolID(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	return id, ok
}
