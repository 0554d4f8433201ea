package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/toolbake/pkg/domain"
)

// EventType identifies what changed in an Event.
type EventType string

const (
	EventIndicator EventType = "indicator"
	EventLog       EventType = "log"
	EventPackages  EventType = "packages"
	EventNotice    EventType = "notice"
	EventValues    EventType = "values"
	EventRun       EventType = "run"
)

// Event is one entry of the aggregated stream. Only the field matching Type
// is set.
type Event struct {
	Type      EventType             `json:"type"`
	Time      time.Time             `json:"time"`
	Indicator domain.IndicatorState `json:"indicator,omitempty"`
	Log       *domain.LogEntry      `json:"log,omitempty"`
	Loading   []string              `json:"loading,omitempty"`
	Notice    *NoticeChange         `json:"notice,omitempty"`
	Values    domain.Values         `json:"values,omitempty"`
	Changed   []string              `json:"changed,omitempty"`
	Run       *domain.ExecutionRun  `json:"run,omitempty"`
}

// Snapshot is the combined state of the projections.
type Snapshot struct {
	Indicator domain.IndicatorState `json:"indicator"`
	Loading   []string              `json:"loading"`
	Notices   []domain.NoticeEntry  `json:"notices"`
	Logs      []domain.LogEntry     `json:"logs"`
}

// Aggregator composes the indicator, log panel, package indicator and notice
// bus of one session into a single view and event stream.
type Aggregator struct {
	Indicator *Indicator
	Logs      *LogBuffer
	Packages  *PackageIndicator
	Notices   *NoticeBus

	subs   subscribers[Event]
	unsubs []func()
	now    func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*aggregatorConfig)

type aggregatorConfig struct {
	logCapacity int
	notice      []NoticeOption
}

// WithLogCapacity sets the size of the log panel.
func WithLogCapacity(n int) AggregatorOption {
	return func(c *aggregatorConfig) {
		c.logCapacity = n
	}
}

// WithNoticeOptions configures the notice bus.
func WithNoticeOptions(opts ...NoticeOption) AggregatorOption {
	return func(c *aggregatorConfig) {
		c.notice = append(c.notice, opts...)
	}
}

// NewAggregator creates the four projections and wires their changes into
// one stream.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	cfg := aggregatorConfig{logCapacity: DefaultLogCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Aggregator{
		Indicator: NewIndicator(),
		Logs:      NewLogBuffer(cfg.logCapacity),
		Packages:  NewPackageIndicator(),
		Notices:   NewNoticeBus(cfg.notice...),
		now:       time.Now,
	}
	a.unsubs = []func(){
		a.Indicator.Subscribe(func(s domain.IndicatorState) {
			a.Publish(Event{Type: EventIndicator, Indicator: s})
		}),
		a.Logs.Subscribe(func(e domain.LogEntry) {
			a.Publish(Event{Type: EventLog, Log: &e})
		}),
		a.Packages.Subscribe(func(loading []string) {
			a.Publish(Event{Type: EventPackages, Loading: loading})
		}),
		a.Notices.Subscribe(func(c NoticeChange) {
			a.Publish(Event{Type: EventNotice, Notice: &c})
		}),
	}
	return a
}

// Publish emits an event on the stream.
func (a *Aggregator) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = a.now()
	}
	a.subs.emit(e)
}

// Snapshot returns the current combined state.
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		Indicator: a.Indicator.State(),
		Loading:   a.Packages.Loading(),
		Notices:   a.Notices.Active(),
		Logs:      a.Logs.Entries(),
	}
}

// Subscribe registers fn for every event.
func (a *Aggregator) Subscribe(fn func(Event)) (unsubscribe func()) {
	return a.subs.add(fn)
}

// Watch streams events until ctx ends. Events are dropped, not queued, when
// the consumer falls more than buffer events behind.
func (a *Aggregator) Watch(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	var mu sync.Mutex
	closed := false

	unsubscribe := a.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

// Close detaches the projections and stops notice timers.
func (a *Aggregator) Close() {
	for _, u := range a.unsubs {
		u()
	}
	a.Notices.Close()
}
