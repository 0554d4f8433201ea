package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/pkg/adapters/file"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/ports"
)

func TestStore_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, file.New(t.TempDir()))
}

func TestStore_ListMissingDir(t *testing.T) {
	ids, err := file.New(filepath.Join(t.TempDir(), "missing")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRepository_Contract(t *testing.T) {
	for _, format := range []string{".yaml", ".json", ".toml"} {
		t.Run(format, func(t *testing.T) {
			repo := file.NewRepository(t.TempDir())
			repo.Format = format
			ports.RunToolRepositoryContract(t, repo)
			ports.RunScriptStoreContract(t, repo)
		})
	}
}

func TestReadTool_Formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"upper.yaml": `
widgets:
  - {id: a, role: input, kind: text}
  - {id: b, role: output, kind: text}
handler: |
  function handler(i) { return { b: i.a.toUpperCase() }; }
`,
		"upper.json": `{"widgets":[{"id":"a","role":"input","kind":"number","config":{"min":0}}],"handler":"(i) => ({})"}`,
		"upper.toml": `
handler = "(i) => ({})"

[[widgets]]
id = "a"
role = "input"
kind = "select"
config = { options = ["x", "y"] }
`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		tool, err := file.ReadTool(path)
		require.NoError(t, err, name)
		assert.Equal(t, "upper", tool.ID, name)
		require.NotEmpty(t, tool.Widgets, name)
		assert.Equal(t, "a", tool.Widgets[0].ID, name)
		assert.Equal(t, domain.RoleInput, tool.Widgets[0].Role, name)
		require.NoError(t, tool.Validate(), name)
	}
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := file.Decode(".ini", nil)
	assert.ErrorIs(t, err, file.ErrUnsupportedFormat)
}

func TestRepository_RejectsPathIDs(t *testing.T) {
	repo := file.NewRepository(t.TempDir())
	_, err := repo.Get(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestRepository_Watch(t *testing.T) {
	dir := t.TempDir()
	repo := file.NewRepository(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var _ ports.Watchable = repo
	events, err := repo.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, repo.Save(ctx, &domain.Tool{
		ID:      "upper",
		Widgets: []domain.WidgetDefinition{{ID: "a", Role: domain.RoleInput, Kind: "text"}},
		Handler: "function handler() { return {}; }",
	}))

	select {
	case id := <-events:
		assert.Equal(t, "upper", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "the channel closes with the context")
}
