// Package jsvm runs JavaScript handlers in a goja runtime.
//
// Each invocation gets a fresh runtime. The handler source either declares a
// function named handler or is itself a function expression:
//
//	async function handler(inputWidgets, changedWidgetId, progress) {
//	    const md = await requestCapability("markdown");
//	    return { preview: md.render(inputWidgets.source) };
//	}
//
// The runtime exposes inputWidgets (frozen), changedWidgetId (undefined on
// forced runs), progress, requestCapability and console. requestCapability
// returns the module directly, so it can be used with or without await.
package jsvm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/loader"
	"github.com/aretw0/toolbake/pkg/sandbox"
)

// Isolate evaluates JavaScript handlers.
type Isolate struct {
	logger   *slog.Logger
	programs sync.Map // source or module URL → *goja.Program
}

// Option configures an Isolate.
type Option func(*Isolate)

// WithLogger configures a logger for the Isolate.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Isolate) {
		i.logger = logger
	}
}

// New creates a JavaScript isolate.
func New(opts ...Option) *Isolate {
	i := &Isolate{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var _ sandbox.Isolate = (*Isolate)(nil)

// run holds the state of one invocation.
type run struct {
	iso    *Isolate
	ctx    context.Context
	vm     *goja.Runtime
	env    sandbox.Env
	freeze goja.Callable
	// capErrs maps the error objects thrown by requestCapability to their cause.
	capErrs map[*goja.Object]error
}

// Run evaluates source and calls its handler.
func (i *Isolate) Run(ctx context.Context, source string, env sandbox.Env) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	r := &run{iso: i, ctx: ctx, vm: vm, env: env}
	if err := r.install(); err != nil {
		return nil, fmt.Errorf("%w: install globals: %w", domain.ErrIsolation, err)
	}

	fn, err := r.handler(source)
	if err != nil {
		return nil, r.failure(err)
	}

	changed := goja.Undefined()
	if env.Trigger != domain.NoTrigger {
		changed = vm.ToValue(env.Trigger)
	}
	ret, err := fn(goja.Undefined(), vm.Get("inputWidgets"), changed, vm.Get("progress"))
	if err != nil {
		return nil, r.failure(err)
	}

	if p, ok := ret.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			ret = p.Result()
		case goja.PromiseStateRejected:
			return nil, r.thrown(p.Result(), "")
		default:
			return nil, &domain.HandlerError{Message: "handler promise never settled"}
		}
	}
	return exportValue(ret), nil
}

func (r *run) install() error {
	objectCtor := r.vm.Get("Object").ToObject(r.vm)
	freeze, ok := goja.AssertFunction(objectCtor.Get("freeze"))
	if !ok {
		return errors.New("Object.freeze unavailable")
	}
	r.freeze = freeze

	inputs := r.vm.NewObject()
	for id, v := range r.env.Inputs {
		if err := inputs.Set(id, r.toJS(v)); err != nil {
			return err
		}
	}
	if _, err := r.freeze(goja.Undefined(), inputs); err != nil {
		return err
	}

	console := r.vm.NewObject()
	for name, level := range map[string]domain.LogLevel{
		"log":   domain.LevelInfo,
		"info":  domain.LevelInfo,
		"debug": domain.LevelDebug,
		"warn":  domain.LevelWarn,
		"error": domain.LevelError,
	} {
		if err := console.Set(name, r.logFunc(level)); err != nil {
			return err
		}
	}

	for name, v := range map[string]any{
		"inputWidgets":      inputs,
		"progress":          r.progress,
		"requestCapability": r.requestCapability,
		"console":           console,
	} {
		if err := r.vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// handler evaluates the source and returns the handler function.
func (r *run) handler(source string) (goja.Callable, error) {
	prog, err := r.iso.compileHandler(source)
	if err != nil {
		return nil, err
	}
	completion, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	declared, err := r.vm.RunString(`typeof handler === "function" ? handler : undefined`)
	if err != nil {
		return nil, err
	}
	if fn, ok := goja.AssertFunction(declared); ok {
		return fn, nil
	}
	if fn, ok := goja.AssertFunction(completion); ok {
		return fn, nil
	}
	return nil, &domain.HandlerError{Message: "source does not define a handler function"}
}

func (r *run) progress(call goja.FunctionCall) goja.Value {
	patch, ok := exportValue(call.Argument(0)).(map[string]any)
	if !ok {
		panic(r.vm.NewTypeError("progress expects an object"))
	}
	r.env.Progress(patch)
	return goja.Undefined()
}

func (r *run) requestCapability(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).String()
	handle, err := r.env.Require(r.ctx, id)
	if err == nil {
		if script, ok := handle.(*loader.Script); ok {
			var exports goja.Value
			if exports, err = r.module(script); err == nil {
				return exports
			}
			err = &domain.CapabilityError{ID: id, Err: err}
		} else {
			return r.vm.ToValue(handle)
		}
	}
	thrown := r.vm.NewGoError(err)
	if r.capErrs == nil {
		r.capErrs = make(map[*goja.Object]error)
	}
	r.capErrs[thrown] = err
	panic(thrown)
}

// module evaluates a remote script as a CommonJS module.
func (r *run) module(s *loader.Script) (goja.Value, error) {
	prog, err := r.iso.compile("module:"+s.URL, s.URL, "(function (module, exports) {\n"+s.Source+"\n})")
	if err != nil {
		return nil, err
	}
	wrapper, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, errors.New("module wrapper is not callable")
	}
	module := r.vm.NewObject()
	exports := r.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	if _, err := fn(goja.Undefined(), module, exports); err != nil {
		return nil, err
	}
	return module.Get("exports"), nil
}

func (r *run) logFunc(level domain.LogLevel) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = formatArg(arg)
		}
		r.env.Log(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// failure classifies an error returned by goja.
func (r *run) failure(err error) error {
	var interrupted *goja.InterruptedError
	var exception *goja.Exception
	var syntax *goja.CompilerSyntaxError
	var handlerErr *domain.HandlerError
	switch {
	case errors.As(err, &interrupted):
		return fmt.Errorf("%w: %v", domain.ErrIsolation, interrupted.Value())
	case errors.As(err, &exception):
		return r.thrown(exception.Value(), exception.String())
	case errors.As(err, &syntax):
		return &domain.HandlerError{Message: "syntax error: " + syntax.Error(), Err: err}
	case errors.As(err, &handlerErr):
		return err
	}
	return &domain.HandlerError{Message: err.Error(), Err: err}
}

// thrown builds the handler error for a thrown value. Only a rethrown
// requestCapability failure keeps its capability cause.
func (r *run) thrown(v goja.Value, stack string) error {
	var cause error
	if obj, ok := v.(*goja.Object); ok {
		cause = r.capErrs[obj]
	}
	return &domain.HandlerError{
		Message: errorMessage(v),
		Stack:   stack,
		Err:     cause,
	}
}

func errorMessage(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return v.String()
}

func (i *Isolate) compileHandler(source string) (*goja.Program, error) {
	prog, err := i.compile("handler:"+source, "handler.js", source)
	if err == nil {
		return prog, nil
	}
	// Anonymous function expressions are not valid statements on their own.
	if wrapped, werr := i.compile("handler-expr:"+source, "handler.js", "(\n"+source+"\n)"); werr == nil {
		return wrapped, nil
	}
	return nil, err
}

func (i *Isolate) compile(key, name, src string) (*goja.Program, error) {
	if p, ok := i.programs.Load(key); ok {
		return p.(*goja.Program), nil
	}
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, err
	}
	i.programs.Store(key, prog)
	i.logger.Debug("compiled script", "name", name)
	return prog, nil
}

// Check compiles a handler without running it.
func (i *Isolate) Check(source string) error {
	_, err := i.compileHandler(source)
	return err
}
