package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/pkg/domain"
)

func TestIndicator(t *testing.T) {
	ind := NewIndicator()
	assert.Equal(t, domain.IndicatorIdle, ind.State())

	var seen []domain.IndicatorState
	unsubscribe := ind.Subscribe(func(s domain.IndicatorState) { seen = append(seen, s) })
	ind.Set(domain.IndicatorRunning)
	ind.Set(domain.IndicatorRunning)
	ind.Set(domain.IndicatorSuccess)
	unsubscribe()
	ind.Set(domain.IndicatorError)

	assert.Equal(t, []domain.IndicatorState{domain.IndicatorRunning, domain.IndicatorSuccess}, seen)
	assert.Equal(t, domain.IndicatorError, ind.State())
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(domain.LogEntry{Level: domain.LevelInfo, Message: fmt.Sprint(i)})
	}

	var msgs []string
	for _, e := range b.Entries() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"3", "4", "5"}, msgs)
	assert.Equal(t, uint64(2), b.Dropped())

	b.Clear()
	assert.Empty(t, b.Entries())
	assert.Len(t, NewLogBuffer(0).entries, DefaultLogCapacity)
}

func TestPackageIndicator(t *testing.T) {
	p := NewPackageIndicator()
	assert.False(t, p.Visible())

	var updates int
	p.Subscribe(func([]string) { updates++ })
	p.Update([]string{"b", "a"})
	p.Update([]string{"a", "b"})
	assert.True(t, p.Visible())
	assert.Equal(t, []string{"a", "b"}, p.Loading())

	p.Update(nil)
	assert.False(t, p.Visible())
	assert.Equal(t, 2, updates)
}

func TestNoticeBus_OneEntryPerSource(t *testing.T) {
	bus := NewNoticeBus(WithTTL(0))
	defer bus.Close()

	bus.Set(domain.SourceExecution, domain.NoticeError, "first")
	bus.Set(domain.SourceExecution, domain.NoticeError, "second")
	bus.Set(domain.SourceCapability, domain.NoticeWarning, "pkg")

	active := bus.Active()
	require.Len(t, active, 2)
	assert.Equal(t, domain.SourceCapability, active[0].Source)
	assert.Equal(t, "second", active[1].Message)
	assert.True(t, active[1].ExpiresAt.IsZero())

	bus.Set(domain.SourceCapability, domain.NoticeWarning, "")
	_, ok := bus.Get(domain.SourceCapability)
	assert.False(t, ok, "an empty message clears the source")

	bus.Dismiss(domain.SourceExecution)
	bus.Dismiss(domain.SourceExecution)
	assert.Empty(t, bus.Active())
}

func TestNoticeBus_TTLResetOnReplace(t *testing.T) {
	bus := NewNoticeBus(WithTTL(200 * time.Millisecond))
	defer bus.Close()

	bus.Set(domain.SourceExecution, domain.NoticeError, "one")
	time.Sleep(120 * time.Millisecond)
	bus.Set(domain.SourceExecution, domain.NoticeError, "two")
	time.Sleep(120 * time.Millisecond)

	entry, ok := bus.Get(domain.SourceExecution)
	require.True(t, ok, "replacing a notice restarts its timer")
	assert.Equal(t, "two", entry.Message)

	assert.Eventually(t, func() bool {
		_, ok := bus.Get(domain.SourceExecution)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator(WithLogCapacity(10), WithNoticeOptions(WithTTL(0)))
	defer agg.Close()

	var mu sync.Mutex
	var types []EventType
	agg.Subscribe(func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})

	agg.Indicator.Set(domain.IndicatorRunning)
	agg.Logs.Append(domain.LogEntry{Message: "hi"})
	agg.Packages.Update([]string{"pkg"})
	agg.Notices.Set(domain.SourceExecution, domain.NoticeError, "boom")
	agg.Publish(Event{Type: EventValues, Changed: []string{"b"}})

	mu.Lock()
	assert.Equal(t, []EventType{EventIndicator, EventLog, EventPackages, EventNotice, EventValues}, types)
	mu.Unlock()

	snap := agg.Snapshot()
	assert.Equal(t, domain.IndicatorRunning, snap.Indicator)
	assert.Equal(t, []string{"pkg"}, snap.Loading)
	assert.Len(t, snap.Notices, 1)
	assert.Len(t, snap.Logs, 1)
}

func TestAggregator_Watch(t *testing.T) {
	agg := NewAggregator()
	defer agg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := agg.Watch(ctx, 4)
	agg.Indicator.Set(domain.IndicatorSuccess)

	select {
	case e := <-ch:
		assert.Equal(t, EventIndicator, e.Type)
		assert.Equal(t, domain.IndicatorSuccess, e.Indicator)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 5*time.Millisecond)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	again, err := NewMetrics(reg)
	require.NoError(t, err, "metrics can be created twice on one registry")

	hooks := m.Hooks()
	ctx := context.Background()
	base := domain.EventBase{ToolID: "upper"}

	ok := &domain.ExecutionRun{State: domain.RunSucceeded}
	failed := &domain.ExecutionRun{State: domain.RunFailed, Err: &domain.HandlerError{Message: "x"}}
	hooks.OnRunFinish(ctx, &domain.RunEvent{EventBase: base, Run: ok})
	again.Hooks().OnRunFinish(ctx, &domain.RunEvent{EventBase: base, Run: failed})
	hooks.OnProgress(ctx, &domain.ProgressEvent{EventBase: base})
	hooks.OnCapabilityLoad(ctx, &domain.CapabilityEvent{Err: errors.New("404")})
	hooks.OnSessionOpen(ctx, base)
	hooks.OnSessionOpen(ctx, base)
	hooks.OnSessionClose(ctx, base)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("upper", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("upper", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.progress.WithLabelValues("upper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
}
