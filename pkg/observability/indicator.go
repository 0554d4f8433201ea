package observability

import (
	"sync"

	"github.com/aretw0/toolbake/pkg/domain"
)

// Indicator is the execution indicator. It is set imperatively by the session
// so that a running state shows up without waiting for derived state.
type Indicator struct {
	mu    sync.RWMutex
	state domain.IndicatorState
	subs  subscribers[domain.IndicatorState]
}

// NewIndicator creates an idle indicator.
func NewIndicator() *Indicator {
	return &Indicator{state: domain.IndicatorIdle}
}

// Set changes the state and notifies subscribers if it differs.
func (i *Indicator) Set(state domain.IndicatorState) {
	i.mu.Lock()
	if i.state == state {
		i.mu.Unlock()
		return
	}
	i.state = state
	i.mu.Unlock()
	i.subs.emit(state)
}

// State returns the current state.
func (i *Indicator) State() domain.IndicatorState {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Subscribe registers fn for state changes.
func (i *Indicator) Subscribe(fn func(domain.IndicatorState)) (unsubscribe func()) {
	return i.subs.add(fn)
}
