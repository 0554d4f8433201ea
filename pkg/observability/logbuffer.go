package observability

import (
	"sync"

	"github.com/aretw0/toolbake/pkg/domain"
)

// DefaultLogCapacity is the size of the log panel.
const DefaultLogCapacity = 200

// LogBuffer is a bounded ring of log entries. When full, the oldest entry is
// dropped.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
	start   int
	size    int
	dropped uint64
	subs    subscribers[domain.LogEntry]
}

// NewLogBuffer creates a ring with the given capacity.
// A non-positive capacity uses DefaultLogCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{entries: make([]domain.LogEntry, capacity)}
}

// Append adds an entry.
func (b *LogBuffer) Append(e domain.LogEntry) {
	b.mu.Lock()
	capacity := len(b.entries)
	if b.size < capacity {
		b.entries[(b.start+b.size)%capacity] = e
		b.size++
	} else {
		b.entries[b.start] = e
		b.start = (b.start + 1) % capacity
		b.dropped++
	}
	b.mu.Unlock()
	b.subs.emit(e)
}

// Entries returns the buffered entries, oldest first.
func (b *LogBuffer) Entries() []domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.LogEntry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}

// Dropped returns how many entries were evicted.
func (b *LogBuffer) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Clear empties the buffer.
func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start, b.size = 0, 0
}

// Subscribe registers fn for appended entries.
func (b *LogBuffer) Subscribe(fn func(domain.LogEntry)) (unsubscribe func()) {
	return b.subs.add(fn)
}
