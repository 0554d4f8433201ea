package ports

import (
	"context"

	"github.com/aretw0/toolbake/pkg/domain"
)

// SnapshotStore persists session snapshots.
// This allows a session to be resumed after the process restarts.
type SnapshotStore interface {
	// Save persists the snapshot for a given session ID.
	Save(ctx context.Context, sessionID string, snap *domain.SessionSnapshot) error

	// Load retrieves the snapshot for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)

	// Delete removes the snapshot for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns all persisted session IDs.
	List(ctx context.Context) ([]string, error)
}
