package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/aretw0/toolbake/pkg/domain"
)

// DefaultNoticeTTL is how long a notice stays visible.
const DefaultNoticeTTL = 8 * time.Second

// NoticeChange is emitted when a source's notice is set or removed.
// Entry is nil on removal.
type NoticeChange struct {
	Source string
	Entry  *domain.NoticeEntry
}

type activeNotice struct {
	entry domain.NoticeEntry
	timer *time.Timer
	gen   uint64
}

// NoticeBus keeps at most one notice per source. Setting a source replaces its
// notice and restarts its auto-dismiss timer.
type NoticeBus struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	gen     uint64
	notices map[string]*activeNotice
	subs    subscribers[NoticeChange]
}

// NoticeOption configures a NoticeBus.
type NoticeOption func(*NoticeBus)

// WithTTL sets the auto-dismiss delay. Zero disables auto-dismiss.
func WithTTL(d time.Duration) NoticeOption {
	return func(b *NoticeBus) {
		b.ttl = d
	}
}

// NewNoticeBus creates an empty bus.
func NewNoticeBus(opts ...NoticeOption) *NoticeBus {
	b := &NoticeBus{
		ttl:     DefaultNoticeTTL,
		now:     time.Now,
		notices: make(map[string]*activeNotice),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Set publishes a notice for source, replacing any previous one.
// An empty message clears the source.
func (b *NoticeBus) Set(source string, level domain.NoticeLevel, message string) {
	if message == "" {
		b.Dismiss(source)
		return
	}

	b.mu.Lock()
	if old, ok := b.notices[source]; ok && old.timer != nil {
		old.timer.Stop()
	}
	b.gen++
	n := &activeNotice{
		entry: domain.NoticeEntry{Source: source, Level: level, Message: message},
		gen:   b.gen,
	}
	if b.ttl > 0 {
		n.entry.ExpiresAt = b.now().Add(b.ttl)
		gen := n.gen
		n.timer = time.AfterFunc(b.ttl, func() { b.expire(source, gen) })
	}
	b.notices[source] = n
	entry := n.entry
	b.mu.Unlock()

	b.subs.emit(NoticeChange{Source: source, Entry: &entry})
}

// Clear removes the notice of source. It is the same as Dismiss.
func (b *NoticeBus) Clear(source string) {
	b.Dismiss(source)
}

// Dismiss removes the notice of source. Dismissing an absent notice is a no-op.
func (b *NoticeBus) Dismiss(source string) {
	b.mu.Lock()
	n, ok := b.notices[source]
	if !ok {
		b.mu.Unlock()
		return
	}
	if n.timer != nil {
		n.timer.Stop()
	}
	delete(b.notices, source)
	b.mu.Unlock()

	b.subs.emit(NoticeChange{Source: source})
}

func (b *NoticeBus) expire(source string, gen uint64) {
	b.mu.Lock()
	n, ok := b.notices[source]
	// A replaced notice has a newer generation and its own timer.
	if !ok || n.gen != gen {
		b.mu.Unlock()
		return
	}
	delete(b.notices, source)
	b.mu.Unlock()

	b.subs.emit(NoticeChange{Source: source})
}

// Get returns the active notice of source.
func (b *NoticeBus) Get(source string) (domain.NoticeEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.notices[source]
	if !ok {
		return domain.NoticeEntry{}, false
	}
	return n.entry, true
}

// Active returns the active notices sorted by source.
func (b *NoticeBus) Active() []domain.NoticeEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.NoticeEntry, 0, len(b.notices))
	for _, n := range b.notices {
		out = append(out, n.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Close stops all pending timers.
func (b *NoticeBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notices {
		if n.timer != nil {
			n.timer.Stop()
		}
	}
}

// Subscribe registers fn for notice changes.
func (b *NoticeBus) Subscribe(fn func(NoticeChange)) (unsubscribe func()) {
	return b.subs.add(fn)
}
