// Package govm runs Go handlers with the yaegi interpreter.
//
// The handler source is a Go file (the package clause may be omitted) that
// declares:
//
//	func Handle(inputs map[string]any, changed string,
//	    progress func(map[string]any),
//	    require func(string) (any, error)) (map[string]any, error)
//
// Only an allow-list of standard library packages may be imported. Anything
// the handler prints to stdout or stderr is forwarded to the log panel.
package govm

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/sandbox"
)

// HandlerFunc is the Go signature of a handler.
type HandlerFunc = func(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error)

// DefaultAllowedPackages lists the imports a handler may use.
var DefaultAllowedPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/hex",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"path",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// Isolate evaluates Go handlers.
type Isolate struct {
	allowed map[string]bool
	logger  *slog.Logger
}

// Option configures an Isolate.
type Option func(*Isolate)

// WithAllowedPackages replaces the import allow-list.
func WithAllowedPackages(pkgs ...string) Option {
	return func(i *Isolate) {
		i.allowed = make(map[string]bool, len(pkgs))
		for _, p := range pkgs {
			i.allowed[p] = true
		}
	}
}

// WithLogger configures a logger for the Isolate.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Isolate) {
		i.logger = logger
	}
}

// New creates a Go isolate.
func New(opts ...Option) *Isolate {
	i := &Isolate{logger: logging.NewNop()}
	WithAllowedPackages(DefaultAllowedPackages...)(i)
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var _ sandbox.Isolate = (*Isolate)(nil)

// Run interprets source and calls Handle.
//
// The interpreter cannot be preempted: when ctx ends first, Run returns an
// isolation failure and the interpreted call is abandoned.
func (i *Isolate) Run(ctx context.Context, source string, env sandbox.Env) (any, error) {
	src := wrap(source)
	if err := i.checkImports(src); err != nil {
		return nil, &domain.HandlerError{Message: err.Error(), Err: err}
	}

	out := &lineWriter{level: domain.LevelInfo, log: env.Log}
	errOut := &lineWriter{level: domain.LevelError, log: env.Log}
	defer out.Flush()
	defer errOut.Flush()

	vm := interp.New(interp.Options{Stdout: out, Stderr: errOut})
	if err := vm.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("%w: load stdlib: %w", domain.ErrIsolation, err)
	}
	if _, err := vm.EvalWithContext(ctx, src); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIsolation, ctx.Err())
		}
		return nil, &domain.HandlerError{Message: "compile: " + err.Error(), Err: err}
	}
	sym, err := vm.Eval("main.Handle")
	if err != nil {
		return nil, &domain.HandlerError{Message: "Handle function not found", Err: err}
	}
	handle, ok := sym.Interface().(HandlerFunc)
	if !ok {
		return nil, &domain.HandlerError{Message: fmt.Sprintf("Handle has signature %s", sym.Type())}
	}

	type result struct {
		patch map[string]any
		err   error
	}
	done := make(chan result, 1)

	inputs := map[string]any(env.Inputs.DeepClone())
	progress := func(p map[string]any) {
		env.Progress(domain.Patch(domain.DeepCopy(p).(map[string]any)))
	}
	require := func(id string) (any, error) {
		return env.Require(ctx, id)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &domain.HandlerError{Message: fmt.Sprint(r), Stack: string(debug.Stack())}}
			}
		}()
		patch, err := handle(inputs, env.Trigger, progress, require)
		done <- result{patch: patch, err: err}
	}()

	select {
	case <-ctx.Done():
		i.logger.Warn("abandoning interpreted handler", "error", ctx.Err())
		return nil, fmt.Errorf("%w: %w", domain.ErrIsolation, ctx.Err())
	case res := <-done:
		if res.err != nil {
			if _, isHandlerErr := res.err.(*domain.HandlerError); isHandlerErr {
				return nil, res.err
			}
			// A returned require error keeps its capability cause; any other
			// error is the handler's own.
			return nil, &domain.HandlerError{Message: res.err.Error(), Err: res.err}
		}
		if res.patch == nil {
			return nil, nil
		}
		return res.patch, nil
	}
}

func wrap(source string) string {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "", source, parser.PackageClauseOnly); err == nil {
		return source
	}
	return "package main\n\n" + source
}

func (i *Isolate) checkImports(src string) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "handler.go", src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if f.Name.Name != "main" {
		return fmt.Errorf("handler package must be main, got %q", f.Name.Name)
	}
	var forbidden []string
	for _, imp := range f.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		if !i.allowed[p] {
			forbidden = append(forbidden, p)
		}
	}
	if len(forbidden) > 0 {
		allowed := slices.Sorted(maps.Keys(i.allowed))
		return fmt.Errorf("forbidden imports %v (allowed: %s)", forbidden, strings.Join(allowed, ", "))
	}
	return nil
}

// lineWriter turns interpreter output into log lines.
type lineWriter struct {
	mu    sync.Mutex
	level domain.LogLevel
	log   func(domain.LogLevel, string)
	buf   bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	if w.log != nil {
		w.log(w.level, line)
	}
}

// Check parses a handler and verifies its imports without running it.
func (i *Isolate) Check(source string) error {
	src := wrap(source)
	if err := i.checkImports(src); err != nil {
		return err
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "handler.go", src, parser.AllErrors); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}
