package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExecute_WatchReloads(t *testing.T) {
	cfg := project(t)
	in, feed := io.Pipe()
	out := &syncBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- Execute(RunOptions{
			Config: cfg,
			ToolID: "upper",
			Watch:  true,
			Input:  in,
			Output: out,
		})
	}()

	_, err := io.WriteString(feed, "a=Hi\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "b: HI") },
		5*time.Second, 20*time.Millisecond)

	lower := strings.Replace(upperYAML, "toUpperCase", "toLowerCase", 1)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Tools, "upper.yaml"), []byte(lower), 0644))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "b: hi") },
		10*time.Second, 20*time.Millisecond, out.String())
	assert.Contains(t, out.String(), "Change detected in 'upper'.")

	require.NoError(t, feed.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop at end of input")
	}
}
