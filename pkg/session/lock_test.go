package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/toolbake/pkg/adapters/memory"
)

func TestManager_LockLifecycle(t *testing.T) {
	repo, err := memory.NewRepository()
	if err != nil {
		t.Fatal(err)
	}
	mgr := NewManager(repo, WithSnapshotStore(memory.NewStore()))
	ctx := context.Background()
	count := 10000

	// Resume and Delete many unknown sessions.
	for i := 0; i < count; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_, _ = mgr.Resume(ctx, sid)
		_ = mgr.Delete(ctx, sid)
	}

	lockCount := len(mgr.locks)
	t.Logf("Sessions: %d, Locks Leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
