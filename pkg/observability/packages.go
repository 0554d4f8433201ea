package observability

import (
	"slices"
	"sync"
)

// PackageIndicator mirrors the set of capabilities being loaded.
type PackageIndicator struct {
	mu      sync.RWMutex
	loading []string
	subs    subscribers[[]string]
}

// NewPackageIndicator creates a hidden indicator.
func NewPackageIndicator() *PackageIndicator {
	return &PackageIndicator{}
}

// Update replaces the loading set. It matches the loader's OnChange callback.
func (p *PackageIndicator) Update(loading []string) {
	next := slices.Clone(loading)
	slices.Sort(next)
	p.mu.Lock()
	if slices.Equal(p.loading, next) {
		p.mu.Unlock()
		return
	}
	p.loading = next
	p.mu.Unlock()
	p.subs.emit(slices.Clone(next))
}

// Loading returns the ids being loaded.
func (p *PackageIndicator) Loading() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.loading)
}

// Visible reports whether anything is loading.
func (p *PackageIndicator) Visible() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.loading) > 0
}

// Subscribe registers fn for changes of the loading set.
func (p *PackageIndicator) Subscribe(fn func([]string)) (unsubscribe func()) {
	return p.subs.add(fn)
}
