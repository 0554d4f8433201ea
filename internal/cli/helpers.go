package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/toolbake/internal/logging"
	"github.com/aretw0/toolbake/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Context.Done():
		}
		sc.stop.Do(func() {
			signal.Stop(sc.sigCh)
		})
	}()

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger. It writes to Stderr (to
// separate from Stdout session output). Quiet raises the level to warnings so
// interactive sessions are not interleaved with info logs.
func createLogger(level string, debug, quiet bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	lvl := logging.ParseLevel(level)
	if quiet && lvl < slog.LevelWarn {
		lvl = slog.LevelWarn
	}
	return logging.New(lvl)
}

// printSystemMessage prints a standardized system message to w.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionOpen: func(ctx context.Context, e domain.EventBase) {
			logger.Debug("Session Open", "session_id", e.SessionID, "tool_id", e.ToolID)
		},
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			logger.Debug("Run Start", "session_id", e.SessionID, "seq", e.Run.Seq, "trigger", e.Run.Trigger)
		},
		OnRunFinish: func(ctx context.Context, e *domain.RunEvent) {
			if e.Run.Error != "" {
				logger.Debug("Run Finish (Error)", "session_id", e.SessionID, "seq", e.Run.Seq, "err", e.Run.Error)
			} else {
				logger.Debug("Run Finish", "session_id", e.SessionID, "seq", e.Run.Seq, "state", e.Run.State)
			}
		},
		OnProgress: func(ctx context.Context, e *domain.ProgressEvent) {
			logger.Debug("Progress", "session_id", e.SessionID, "changed", e.Changed)
		},
		OnCapabilityLoad: func(ctx context.Context, e *domain.CapabilityEvent) {
			logger.Debug("Capability Load", "module_id", e.ModuleID, "duration", e.Duration, "err", e.Err)
		},
		OnSessionClose: func(ctx context.Context, e domain.EventBase) {
			logger.Debug("Session Close", "session_id", e.SessionID)
		},
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil // Exit 0 for interruptions
	}
	return err
}

func logCompletion(w io.Writer, sessionID string, sig os.Signal) {
	switch sig {
	case nil:
		printSystemMessage(w, "Session '%s' saved.", sessionID)
	case os.Interrupt:
		fmt.Fprint(w, "[CTRL+C]\n")
		printSystemMessage(w, "Interrupted. Session '%s' saved.", sessionID)
	default:
		fmt.Fprintln(w)
		printSystemMessage(w, "Terminated. Session '%s' saved.", sessionID)
	}
}
