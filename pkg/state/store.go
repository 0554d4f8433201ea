// Package state holds the widget value store of a tool session.
package state

import (
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/merge"
	"github.com/aretw0/toolbake/pkg/widget"
)

// Change describes one committed write.
type Change struct {
	Values  domain.Values // snapshot after the write
	Changed []string      // ids whose value changed, sorted
}

// Store is the canonical id → value map of a session.
// Every declared widget has an entry from construction on. Writes go through
// merge.Apply and are serialized; reads may run concurrently.
type Store struct {
	mu     sync.RWMutex
	kinds  widget.Kinds
	values domain.Values

	subMu     sync.Mutex
	nextSub   int
	observers map[int]func(Change)
}

// New creates a store seeded with each widget's default or its kind's empty value.
func New(tool *domain.Tool, opts ...Option) (*Store, error) {
	o := options{catalog: widget.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	kinds, err := o.catalog.Resolve(tool)
	if err != nil {
		return nil, err
	}
	values, err := kinds.Defaults(tool)
	if err != nil {
		return nil, err
	}
	return &Store{
		kinds:     kinds,
		values:    values,
		observers: make(map[int]func(Change)),
	}, nil
}

type options struct {
	catalog *widget.Catalog
}

// Option configures a Store.
type Option func(*options)

// WithCatalog resolves widget kinds from a custom catalog.
func WithCatalog(c *widget.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// Kinds returns the resolved widget kinds.
func (s *Store) Kinds() widget.Kinds {
	return s.kinds
}

// Get returns the current value of a widget.
func (s *Store) Get(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return domain.DeepCopy(v), ok
}

// Snapshot returns a deep copy of all values. Writing into it never
// reaches the store.
func (s *Store) Snapshot() domain.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.DeepClone()
}

// SetMany applies a patch atomically and returns the changed ids.
// It never triggers execution; callers decide what to do with the ids.
func (s *Store) SetMany(patch domain.Patch) ([]string, error) {
	s.mu.Lock()
	next, changed, err := merge.Apply(s.kinds, s.values, patch)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.values = next
	snapshot := next.Clone()
	// Observers are notified while writes are still excluded so that they
	// see commits in order.
	s.subMu.Lock()
	s.mu.Unlock()
	defer s.subMu.Unlock()
	if len(changed) > 0 {
		for _, id := range s.observerIDs() {
			s.observers[id](Change{Values: snapshot, Changed: changed})
		}
	}
	return changed, nil
}

// Restore replaces the values of known widgets, typically from a persisted
// snapshot. Unknown ids are ignored so that older snapshots remain loadable.
func (s *Store) Restore(values domain.Values) ([]string, error) {
	patch := make(domain.Patch, len(values))
	for id, v := range values {
		if _, ok := s.kinds[id]; ok {
			patch[id] = v
		}
	}
	changed, err := s.SetMany(patch)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return changed, nil
}

// Subscribe registers fn to be called after every write that changed at
// least one widget. The returned function removes the observer.
// Observers must not write to the store or subscribe from inside fn.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.observers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.observers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) observerIDs() []int {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
