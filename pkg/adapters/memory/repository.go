package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/toolbake/pkg/domain"
)

// Repository implements ports.ToolRepository, ports.ScriptStore and
// ports.Watchable in memory. Safe for concurrent use.
type Repository struct {
	mu       sync.RWMutex
	tools    map[string]*domain.Tool
	global   string
	watchers map[chan string]struct{}
}

// NewRepository creates a repository holding the given tools.
func NewRepository(tools ...*domain.Tool) (*Repository, error) {
	r := &Repository{
		tools:    make(map[string]*domain.Tool),
		watchers: make(map[chan string]struct{}),
	}
	for _, t := range tools {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: tool missing ID", domain.ErrInvalidTool)
		}
		r.tools[t.ID] = t.Clone()
	}
	return r, nil
}

// Get returns a copy of the tool with the given ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
	}
	return t.Clone(), nil
}

// List returns all tool IDs, sorted.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}

// Save creates or replaces a tool and notifies watchers.
func (r *Repository) Save(ctx context.Context, tool *domain.Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.tools[tool.ID] = tool.Clone()
	r.mu.Unlock()
	r.notify(tool.ID)
	return nil
}

// Delete removes a tool and notifies watchers.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.tools[id]
	delete(r.tools, id)
	r.mu.Unlock()
	if ok {
		r.notify(id)
	}
	return nil
}

// LoadGlobal returns the global script.
func (r *Repository) LoadGlobal(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global, nil
}

// SaveGlobal replaces the global script.
func (r *Repository) SaveGlobal(ctx context.Context, script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = script
	return nil
}

// Watch reports the ID of every saved or deleted tool until ctx ends.
// Slow watchers miss notifications rather than block writers.
func (r *Repository) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.watchers, ch)
		close(ch)
		r.mu.Unlock()
	}()
	return ch, nil
}

func (r *Repository) notify(id string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.watchers {
		select {
		case ch <- id:
		default:
		}
	}
}
