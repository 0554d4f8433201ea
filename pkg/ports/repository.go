package ports

import (
	"context"

	"github.com/aretw0/toolbake/pkg/domain"
)

// ToolRepository is the backend collaborator holding Tool records.
type ToolRepository interface {
	// Get returns the tool with the given ID.
	// Returns domain.ErrToolNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Tool, error)

	// List returns the IDs of all tools, sorted.
	List(ctx context.Context) ([]string, error)

	// Save creates or replaces a tool.
	Save(ctx context.Context, tool *domain.Tool) error

	// Delete removes a tool. Deleting a missing tool is not an error.
	Delete(ctx context.Context, id string) error
}

// ScriptStore holds the global script shared by every JavaScript handler.
type ScriptStore interface {
	// LoadGlobal returns the global script, or "" if none is set.
	LoadGlobal(ctx context.Context) (string, error)

	// SaveGlobal replaces the global script.
	SaveGlobal(ctx context.Context, script string) error
}

// Watchable is implemented by repositories that can report catalog changes.
type Watchable interface {
	// Watch returns a channel that receives the ID of every changed tool.
	// The channel is closed when ctx ends.
	Watch(ctx context.Context) (<-chan string, error)
}
