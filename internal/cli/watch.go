package cli

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/toolbake"
	"github.com/aretw0/toolbake/internal/presentation/tui"
	"github.com/aretw0/toolbake/pkg/domain"
)

// reloadDelay lets the file system settle before the tool is read again.
var reloadDelay = 100 * time.Millisecond

// RunWatch drives a session in development mode, reloading the tool each
// time its definition changes. Values survive reloads through the session
// snapshot.
func RunWatch(app *App, opts RunOptions, initial domain.Patch) error {
	opts.defaults()
	tui.PrintBanner(opts.Output, toolbake.Version)

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	watchCh, err := app.Engine.Watch(sigCtx)
	if err != nil {
		return err
	}
	// One reader for every iteration, so reloads do not leave readers behind.
	lines := toolbake.Lines(sigCtx, opts.Input)

	app.Logger.Info("Starting Watcher", "path", app.Config.Tools, "session_id", opts.SessionID)
	printSystemMessage(opts.Output, "Watcher at '%s' session.", opts.SessionID)

	patch := initial
	reloaded := false
	for {
		again, err := runWatchIteration(sigCtx, app, opts, lines, watchCh, patch, reloaded)
		if err != nil {
			return handleExecutionError(err)
		}
		if !again {
			break
		}
		patch, reloaded = nil, true
		app.Logger.Info("Watcher restarting")
	}

	logCompletion(opts.Output, opts.SessionID, sigCtx.Signal())
	return nil
}

// runWatchIteration runs the session until a change, a signal or the end of
// input. It reports whether the watcher should start again.
func runWatchIteration(ctx context.Context, app *App, opts RunOptions, lines <-chan string, watchCh <-chan string, initial domain.Patch, reloaded bool) (bool, error) {
	iterCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := openSession(iterCtx, app, opts, initial)
	if err != nil {
		app.Logger.Error("Session failed", "err", err)
		printSystemMessage(opts.Output, "Error: %v", err)
		printSystemMessage(opts.Output, "Waiting for changes...")
		select {
		case <-ctx.Done():
			return false, nil
		case _, ok := <-watchCh:
			time.Sleep(reloadDelay)
			return ok, nil
		}
	}

	r := newRunner(opts)
	r.Lines = lines
	if reloaded {
		// Show the reloaded handler's outputs for the current values.
		if err := sess.Run(); err == nil {
			if err := r.Settle(iterCtx, sess); err != nil {
				app.Logger.Warn("reload run did not settle", "err", err)
			}
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Run(iterCtx, sess)
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		app.Logger.Info("Stopping watcher (signal received)", "signal", sigOf(ctx))
		return false, nil
	case event, ok := <-watchCh:
		cancel()
		<-done
		if !ok {
			return false, nil
		}
		app.Logger.Info("Change detected, triggering reload", "event", event)
		printSystemMessage(opts.Output, "Change detected in '%s'.", event)
		time.Sleep(reloadDelay)
		// The next iteration resumes from the snapshot with the new definition.
		if err := app.Engine.Manager().Close(context.WithoutCancel(ctx), sess.ID()); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			app.Logger.Warn("failed to close session before reload", "session_id", sess.ID(), "err", err)
		}
		return true, nil
	case err := <-done:
		return false, err
	}
}

func sigOf(ctx context.Context) any {
	if sc, ok := ctx.(*SignalContext); ok {
		return sc.Signal()
	}
	return nil
}
