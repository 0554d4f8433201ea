package cli

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/toolbake/internal/config"
	"github.com/aretw0/toolbake/pkg/domain"
)

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	Config    config.Config
	ToolID    string
	Headless  bool
	JSON      bool // JSON Lines in and out; implies Headless
	Watch     bool
	Debug     bool
	Values    string // Raw JSON object of initial input values
	SessionID string
	Fresh     bool

	Input  io.Reader
	Output io.Writer
}

func (o *RunOptions) defaults() {
	if o.Input == nil {
		o.Input = os.Stdin
	}
	if o.Output == nil {
		o.Output = os.Stdout
	}
}

// Execute handles the 'run' command logic, dispatching to Session or Watch mode.
func Execute(opts RunOptions) error {
	opts.defaults()
	if opts.JSON {
		opts.Headless = true
	}

	var initial domain.Patch
	if opts.Values != "" {
		if err := json.Unmarshal([]byte(opts.Values), &initial); err != nil {
			return fmt.Errorf("error parsing --values JSON: %w", err)
		}
	}

	if opts.Watch {
		if opts.Headless {
			return fmt.Errorf("--watch cannot be used with --headless or --json")
		}
		// Default session for watch mode so values survive reloads.
		// We scope it by path hash to prevent collisions between projects.
		if opts.SessionID == "" {
			hash := md5.Sum([]byte(opts.Config.Tools + "#" + opts.ToolID))
			opts.SessionID = fmt.Sprintf("watch-%x", hash[:4])
		}
	}

	app, err := Build(opts.Config, BuildOptions{Debug: opts.Debug, Quiet: true})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	if opts.Fresh && opts.SessionID != "" {
		if err := app.Engine.Manager().Delete(context.Background(), opts.SessionID); err != nil {
			return fmt.Errorf("failed to reset session: %w", err)
		}
	}

	if opts.Watch {
		return RunWatch(app, opts, initial)
	}
	return RunSession(app, opts, initial)
}
