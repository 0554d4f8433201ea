package domain

import "time"

// ModuleState is the cache state of a capability.
type ModuleState string

const (
	ModuleUnloaded ModuleState = "unloaded"
	ModuleLoading  ModuleState = "loading"
	ModuleLoaded   ModuleState = "loaded"
	ModuleFailed   ModuleState = "failed"
)

// ModuleCacheEntry describes one capability in a session's module cache.
type ModuleCacheEntry struct {
	ID         string      `json:"id"`
	State      ModuleState `json:"state"`
	Provenance string      `json:"provenance,omitempty"`
	Error      string      `json:"error,omitempty"`
	LoadedAt   time.Time   `json:"loaded_at,omitempty"`
}
