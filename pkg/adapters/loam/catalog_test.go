package loam

import (
	"context"
	"testing"

	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/internal/testutils"
	"github.com/aretw0/toolbake/pkg/domain"
)

func setupCatalog(t *testing.T, files map[string]string) *Catalog {
	t.Helper()
	_, repo := testutils.SetupLoamRepo(t, files, loam.WithVersioning(false))
	return New(loam.NewTypedRepository[ToolMetadata](repo))
}

const upperDoc = `---
id: upper
uid: rev-1
name: Upper
widgets:
  - id: a
    role: input
    kind: text
    label: Input
  - id: b
    role: output
    kind: text@1
metadata:
  category: text
  x:
    author: me
---
function handler(inputWidgets) {
  return { b: inputWidgets.a.toUpperCase() };
}
`

func TestCatalog_Get(t *testing.T) {
	c := setupCatalog(t, map[string]string{"upper.md": upperDoc})

	tool, err := c.Get(context.Background(), "upper")
	require.NoError(t, err)
	assert.Equal(t, "upper", tool.ID)
	assert.Equal(t, "rev-1", tool.UID)
	assert.Equal(t, []string{"a", "b"}, tool.WidgetIDs())
	assert.Equal(t, domain.RoleOutput, tool.Widgets[1].Role)
	assert.Contains(t, tool.Handler, "toUpperCase")
	assert.Equal(t, "text", tool.Metadata["category"])
	assert.Equal(t, "me", tool.Metadata["x-author"])
	require.NoError(t, tool.Validate())
}

func TestCatalog_GetMissing(t *testing.T) {
	c := setupCatalog(t, map[string]string{"upper.md": upperDoc})

	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestCatalog_List_NormalizesIDs(t *testing.T) {
	c := setupCatalog(t, map[string]string{
		"upper.md": upperDoc,
		"implicit.md": `---
widgets:
  - id: a
    kind: text
---
(i) => ({})`,
		"_global.md": "function shared() {}",
	})

	ids, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"implicit", "upper"}, ids)

	global, err := c.LoadGlobal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "function shared() {}", global)
}

func TestCatalog_ReadOnly(t *testing.T) {
	c := setupCatalog(t, map[string]string{"upper.md": upperDoc})
	ctx := context.Background()

	assert.ErrorIs(t, c.Save(ctx, &domain.Tool{ID: "x"}), ErrReadOnly)
	assert.ErrorIs(t, c.Delete(ctx, "upper"), ErrReadOnly)
	assert.ErrorIs(t, c.SaveGlobal(ctx, ""), ErrReadOnly)
}

func TestFlattenMetadata(t *testing.T) {
	got := flattenMetadata(map[string]any{
		"a": "1",
		"b": map[string]any{"c": 2, "d": map[string]any{"e": true}},
	})
	assert.Equal(t, map[string]string{"a": "1", "b-c": "2", "b-d-e": "true"}, got)
}
