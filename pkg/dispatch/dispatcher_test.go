package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/toolbake/pkg/domain"
)

// gatedRunner blocks the first run until released and records every trigger.
type gatedRunner struct {
	started chan struct{}
	release chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32

	mu       sync.Mutex
	triggers []string
	once     sync.Once
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRunner) run(ctx context.Context, seq uint64, trigger string) error {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		m := g.maxActive.Load()
		if n <= m || g.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	g.mu.Lock()
	g.triggers = append(g.triggers, trigger)
	g.mu.Unlock()

	first := false
	g.once.Do(func() {
		first = true
		close(g.started)
	})
	if first {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (g *gatedRunner) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.triggers...)
}

func waitIdle(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
}

func TestDispatcher_AtMostOneInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedRunner()
	d := New(g.run)
	defer d.Close()

	require.NoError(t, d.Trigger("a"))
	<-g.started
	for i := 0; i < 50; i++ {
		require.NoError(t, d.Trigger("b"))
	}
	assert.Equal(t, RunningWithPending, d.Status().State)
	close(g.release)
	waitIdle(t, d)

	assert.Equal(t, int32(1), g.maxActive.Load())
	assert.Equal(t, []string{"a", "b"}, g.seen(), "N changes produce exactly one follow-up run")
	assert.Equal(t, Status{State: Idle, Seq: 2}, d.Status())
}

func TestDispatcher_LatestWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedRunner()
	d := New(g.run)
	defer d.Close()

	require.NoError(t, d.Trigger("A"))
	<-g.started
	require.NoError(t, d.Trigger("B"))
	require.NoError(t, d.Trigger("C"))
	assert.Equal(t, "C", d.Status().Pending)

	close(g.release)
	waitIdle(t, d)
	assert.Equal(t, []string{"A", "C"}, g.seen())
}

func TestDispatcher_IdleRunsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	d := New(func(ctx context.Context, seq uint64, trigger string) error {
		calls.Add(1)
		return nil
	})
	defer d.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Trigger(domain.NoTrigger))
		waitIdle(t, d)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(3), d.Status().Seq)
}

func TestDispatcher_HandlerErrorsDoNotHalt(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New(func(ctx context.Context, seq uint64, trigger string) error {
		if seq == 1 {
			panic("bug in run")
		}
		return &domain.HandlerError{Message: "threw"}
	})
	defer d.Close()

	require.NoError(t, d.Trigger("x"))
	waitIdle(t, d)
	require.NoError(t, d.Trigger("x"))
	waitIdle(t, d)
	assert.Equal(t, Idle, d.Status().State)
}

func TestDispatcher_IsolationFailureHalts(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedRunner()
	d := New(func(ctx context.Context, seq uint64, trigger string) error {
		_ = g.run(ctx, seq, trigger)
		return domain.ErrIsolation
	})
	defer d.Close()

	require.NoError(t, d.Trigger("a"))
	<-g.started
	require.NoError(t, d.Trigger("b"))
	close(g.release)
	waitIdle(t, d)

	st := d.Status()
	assert.Equal(t, Halted, st.State)
	assert.True(t, errors.Is(st.Err, domain.ErrIsolation))
	assert.Equal(t, []string{"a"}, g.seen(), "the pending run is dropped")
	assert.True(t, errors.Is(d.Trigger("c"), ErrHalted))
}

func TestDispatcher_CloseCancelsInFlightRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedRunner()
	d := New(g.run)

	require.NoError(t, d.Trigger("a"))
	<-g.started
	d.Close()

	assert.Equal(t, Halted, d.Status().State)
	waitIdle(t, d)
	assert.True(t, errors.Is(d.Trigger("a"), ErrHalted))
	d.Close()
}

func TestDispatcher_WaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedRunner()
	d := New(g.run)
	defer d.Close()

	require.NoError(t, d.Trigger("a"))
	<-g.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
	close(g.release)
	waitIdle(t, d)
}
