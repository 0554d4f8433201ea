// Package process exposes allow-listed local commands as capabilities.
//
// A handler requests "process:<name>" and receives a command object whose
// run(args) method executes the registered command. Arguments are passed as
// TOOLBAKE_ARG_<KEY> environment variables, never as command-line flags.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/registry"
)

// Prefix is the capability name prefix of process commands.
const Prefix = "process:"

// EnvPrefix prefixes argument environment variables.
const EnvPrefix = "TOOLBAKE_ARG_"

// DefaultTimeout bounds each execution.
const DefaultTimeout = 30 * time.Second

// GracePeriod is how long a cancelled process may take to exit after the
// interrupt signal before it is killed.
const GracePeriod = 5 * time.Second

// ErrNotRegistered is returned for commands outside the allow-list.
var ErrNotRegistered = errors.New("process not registered")

// Runner executes local processes from a strict allow-list.
type Runner struct {
	registry map[string]ProcessConfig
	baseDir  string
	timeout  time.Duration
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(procs map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, p := range procs {
			p.Name = name
			r.registry[name] = p
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithTimeout bounds each execution. Zero disables the bound.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]ProcessConfig),
		timeout:  DefaultTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = ProcessConfig{Name: name, Command: command, Args: args}
}

// Names returns the registered process names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries returns one manifest entry per registered process.
func (r *Runner) Entries() []registry.Entry {
	entries := make([]registry.Entry, 0, len(r.registry))
	for _, name := range r.Names() {
		entries = append(entries, registry.Entry{
			Name: Prefix + name,
			URL:  "process://" + name,
			Load: func(ctx context.Context) (any, error) {
				return r.Command(ctx, name)
			},
		})
	}
	return entries
}

// Command returns a handle bound to ctx. Executions stop when ctx ends.
func (r *Runner) Command(ctx context.Context, name string) (*Command, error) {
	if _, ok := r.registry[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return &Command{ctx: ctx, runner: r, name: name}, nil
}

// Command is the capability handle of one registered process.
type Command struct {
	ctx    context.Context
	runner *Runner
	name   string
}

// Run executes the command with args and returns its output: parsed JSON
// when stdout is a JSON object or array, trimmed text otherwise.
func (c *Command) Run(args map[string]any) (any, error) {
	return c.runner.Execute(c.ctx, c.name, args)
}

// Execute runs a registered process.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	proc, ok := r.registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = GracePeriod

	env := cmd.Environ()
	for k, v := range proc.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+envValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("process finished", "name", name, "duration", time.Since(start), "error", err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("process %s: %w: %w", name, ctxErr, err)
		}
		return nil, fmt.Errorf("process %s failed: %w. Stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	trimmed := strings.TrimSpace(stdout.String())
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var out any
		if jsonErr := json.Unmarshal([]byte(trimmed), &out); jsonErr == nil {
			return out, nil
		}
	}
	return trimmed, nil
}

// envValue renders primitives as text and everything else as JSON.
func envValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", val)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
