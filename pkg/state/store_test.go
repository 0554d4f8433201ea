package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/pkg/domain"
)

func newTool() *domain.Tool {
	return &domain.Tool{
		ID: "upper",
		Widgets: []domain.WidgetDefinition{
			{ID: "a", Role: domain.RoleInput, Kind: "text", Default: "seed"},
			{ID: "b", Role: domain.RoleOutput, Kind: "text"},
			{ID: "p", Role: domain.RoleOutput, Kind: "progress"},
		},
	}
}

func TestNew_SeedsEveryWidget(t *testing.T) {
	s, err := New(newTool())
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, "seed", snap["a"])
	assert.Equal(t, "", snap["b"])
	assert.NotNil(t, snap["p"])
}

func TestNew_InvalidKind(t *testing.T) {
	tool := newTool()
	tool.Widgets[0].Kind = "nope"
	_, err := New(tool)
	assert.True(t, errors.Is(err, domain.ErrInvalidTool))
}

func TestSetMany(t *testing.T) {
	s, err := New(newTool())
	require.NoError(t, err)

	changed, err := s.SetMany(domain.Patch{"a": "hi", "b": ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, changed)

	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "hi", v)

	_, err = s.SetMany(domain.Patch{"a": "lost", "ghost": 1})
	assert.True(t, errors.Is(err, domain.ErrMergeContract))
	v, _ = s.Get("a")
	assert.Equal(t, "hi", v, "failed writes apply nothing")
}

func TestSnapshotIsACopy(t *testing.T) {
	s, err := New(newTool())
	require.NoError(t, err)

	snap := s.Snapshot()
	snap["a"] = "mutated"
	v, _ := s.Get("a")
	assert.Equal(t, "seed", v)
}

func TestSubscribe_SeesCommitsInOrder(t *testing.T) {
	s, err := New(newTool())
	require.NoError(t, err)

	var seen []any
	unsubscribe := s.Subscribe(func(c Change) {
		seen = append(seen, c.Values["b"])
	})

	for _, v := range []string{"1", "2", "2", "3"} {
		_, err := s.SetMany(domain.Patch{"b": v})
		require.NoError(t, err)
	}
	assert.Equal(t, []any{"1", "2", "3"}, seen, "no-op writes are not observed")

	unsubscribe()
	_, err = s.SetMany(domain.Patch{"b": "4"})
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestRestore_IgnoresUnknownIDs(t *testing.T) {
	s, err := New(newTool())
	require.NoError(t, err)

	changed, err := s.Restore(domain.Values{"a": "back", "removed": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, changed)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s, err := New(newTool())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = s.SetMany(domain.Patch{"b": "x"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	v, _ := s.Get("b")
	assert.Equal(t, "x", v)
}
