package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := &domain.SessionSnapshot{
			SessionID: sessionID,
			ToolID:    "upper",
			ToolUID:   "rev-1",
			Values:    domain.Values{"a": "hi", "count": 42},
			UpdatedAt: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, store.Save(ctx, sessionID, snap), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "upper", loaded.ToolID)
		assert.Equal(t, "rev-1", loaded.ToolUID)
		assert.Equal(t, "hi", loaded.Values["a"])
		// JSON round trips turn numbers into float64.
		assert.EqualValues(t, 42, loaded.Values["count"])
		assert.True(t, snap.UpdatedAt.Equal(loaded.UpdatedAt))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, &domain.SessionSnapshot{SessionID: sessionID, ToolID: "upper"}))
		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, &domain.SessionSnapshot{SessionID: id1, ToolID: "upper"})
		_ = store.Save(ctx, id2, &domain.SessionSnapshot{SessionID: id2, ToolID: "upper"})
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunToolRepositoryContract verifies a writable ToolRepository implementation.
func RunToolRepositoryContract(t *testing.T, repo ToolRepository) {
	ctx := context.Background()
	tool := &domain.Tool{
		ID:       "contract-upper",
		UID:      "rev-1",
		Name:     "Upper",
		Language: domain.LanguageJavaScript,
		Widgets: []domain.WidgetDefinition{
			{ID: "a", Role: domain.RoleInput, Kind: "text", Label: "Input"},
			{ID: "b", Role: domain.RoleOutput, Kind: "text@1"},
		},
		Handler:  "function handler(i) { return { b: i.a.toUpperCase() }; }",
		Metadata: map[string]string{"category": "text"},
	}

	t.Run("Save and Get", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, tool))

		got, err := repo.Get(ctx, tool.ID)
		require.NoError(t, err)
		assert.Equal(t, tool.ID, got.ID)
		assert.Equal(t, tool.UID, got.UID)
		assert.Equal(t, tool.Handler, got.Handler)
		assert.Equal(t, tool.WidgetIDs(), got.WidgetIDs())
		assert.Equal(t, domain.RoleOutput, got.Widgets[1].Role)
		assert.Equal(t, "text", got.Metadata["category"])
	})

	t.Run("List", func(t *testing.T) {
		ids, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, tool.ID)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing-"+tool.ID)
		assert.ErrorIs(t, err, domain.ErrToolNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, tool.ID))
		_, err := repo.Get(ctx, tool.ID)
		assert.ErrorIs(t, err, domain.ErrToolNotFound)
		assert.NoError(t, repo.Delete(ctx, tool.ID), "deleting twice is not an error")
	})
}

// RunScriptStoreContract verifies a ScriptStore implementation.
func RunScriptStoreContract(t *testing.T, store ScriptStore) {
	ctx := context.Background()

	require.NoError(t, store.SaveGlobal(ctx, "const shared = 1;"))
	got, err := store.LoadGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "const shared = 1;", got)

	require.NoError(t, store.SaveGlobal(ctx, ""))
	got, err = store.LoadGlobal(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
