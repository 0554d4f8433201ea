package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/toolbake"
	"github.com/aretw0/toolbake/internal/presentation/tui"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/session"
)

// RunSession drives one session of a tool from the command line.
func RunSession(app *App, opts RunOptions, initial domain.Patch) error {
	opts.defaults()
	if !opts.Headless {
		tui.PrintBanner(opts.Output, toolbake.Version)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	sess, err := openSession(sigCtx, app, opts, initial)
	if err != nil {
		return fmt.Errorf("failed to init session: %w", err)
	}
	app.Logger.Info("Session Active", "session_id", sess.ID(), "tool_id", sess.Tool().ID)
	if !opts.Headless {
		printSystemMessage(opts.Output, "Session '%s' active.", sess.ID())
	}

	r := newRunner(opts)
	runErr := r.Run(sigCtx, sess)
	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}

	if !opts.Headless && opts.SessionID != "" {
		logCompletion(opts.Output, sess.ID(), sigCtx.Signal())
	}
	if opts.SessionID == "" {
		// Anonymous sessions are not kept.
		_ = app.Engine.Manager().Delete(context.WithoutCancel(sigCtx), sess.ID())
	}
	return handleExecutionError(runErr)
}

// openSession opens or resumes the session and applies the initial values.
func openSession(ctx context.Context, app *App, opts RunOptions, initial domain.Patch) (*session.Session, error) {
	sess, err := app.Engine.Manager().OpenAs(ctx, opts.SessionID, opts.ToolID)
	if err != nil {
		return nil, err
	}
	if len(initial) > 0 {
		if _, err := sess.EditMany(initial); err != nil {
			return nil, err
		}
		if err := sess.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func newRunner(opts RunOptions) *toolbake.Runner {
	r := toolbake.NewRunner()
	r.Input = opts.Input
	r.Output = opts.Output
	r.Headless = opts.Headless
	r.JSON = opts.JSON
	if !opts.Headless {
		if render := tui.NewRenderer(); render != nil {
			r.Renderer = func(s string) (string, error) {
				out, err := render(s)
				return strings.TrimSpace(out), err
			}
		}
	}
	return r
}
