// Package registry holds the build-time capability manifest.
//
// The manifest maps a capability name to the function that instantiates it and
// the URL it was obtained from. It is fixed when a runtime is assembled; the
// loader consults it before falling back to remote module references.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotRegistered is returned when a name is not in the manifest.
var ErrNotRegistered = errors.New("capability not registered")

// LoadFunc instantiates a capability. It receives the loader's context, not
// the context of whichever handler requested it first.
type LoadFunc func(ctx context.Context) (any, error)

// Entry is one manifest record.
type Entry struct {
	Name string
	// URL records where the capability came from. Informational only.
	URL  string
	Load LoadFunc
}

// Manifest manages the available capabilities.
type Manifest struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewManifest creates a manifest with the given entries.
func NewManifest(entries ...Entry) *Manifest {
	m := &Manifest{
		entries: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		m.Register(e)
	}
	return m
}

// Register adds a capability to the manifest.
// If a capability with the same name exists, it is overwritten.
func (m *Manifest) Register(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Name] = e
}

// Lookup returns the entry for name.
func (m *Manifest) Lookup(name string) (Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()

	if !ok || e.Load == nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return e, nil
}

// Names returns the registered capability names, sorted.
func (m *Manifest) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new manifest with the entries of m and then others.
// Later entries win on name clashes.
func (m *Manifest) Merge(others ...*Manifest) *Manifest {
	out := NewManifest()
	for _, src := range append([]*Manifest{m}, others...) {
		if src == nil {
			continue
		}
		src.mu.RLock()
		for _, e := range src.entries {
			out.entries[e.Name] = e
		}
		src.mu.RUnlock()
	}
	return out
}

// Value returns a LoadFunc that yields v.
func Value(v any) LoadFunc {
	return func(context.Context) (any, error) {
		return v, nil
	}
}
