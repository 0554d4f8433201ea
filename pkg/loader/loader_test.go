package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/registry"
)

func TestResolve_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	l := New(registry.NewManifest(registry.Entry{
		Name: "pkg",
		Load: func(ctx context.Context) (any, error) {
			if calls.Add(1) == 1 {
				close(entered)
			}
			<-release
			return "handle", nil
		},
	}))
	defer l.Close()

	var wg sync.WaitGroup
	results := make([]any, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Resolve(context.Background(), "pkg")
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	<-entered
	assert.Equal(t, []string{"pkg"}, l.Loading())
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []any{"handle", "handle"}, results)
	assert.Empty(t, l.Loading())

	// Served from cache.
	v, err := l.Resolve(context.Background(), "pkg")
	require.NoError(t, err)
	assert.Equal(t, "handle", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolve_FailureIsNotCached(t *testing.T) {
	var calls atomic.Int32
	l := New(registry.NewManifest(registry.Entry{
		Name: "missing-pkg",
		Load: func(ctx context.Context) (any, error) {
			calls.Add(1)
			return nil, errors.New("404")
		},
	}))
	defer l.Close()

	_, err := l.Resolve(context.Background(), "missing-pkg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCapabilityLoad))

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ModuleFailed, entries[0].State)
	assert.Equal(t, "404", entries[0].Error)

	_, err = l.Resolve(context.Background(), "missing-pkg")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "a failed load is retried")
}

func TestResolve_RecoversLoaderPanic(t *testing.T) {
	l := New(registry.NewManifest(registry.Entry{
		Name: "boom",
		Load: func(context.Context) (any, error) { panic("kaput") },
	}))
	defer l.Close()

	_, err := l.Resolve(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaput")
}

func TestResolve_CallerCancellationDoesNotCancelLoad(t *testing.T) {
	release := make(chan struct{})
	var loadCtxErr error
	l := New(registry.NewManifest(registry.Entry{
		Name: "slow",
		Load: func(ctx context.Context) (any, error) {
			<-release
			loadCtxErr = ctx.Err()
			return 42, nil
		},
	}))
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Resolve(ctx, "slow")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(l.Loading()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))

	close(release)
	require.Eventually(t, func() bool { return len(l.Loading()) == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, loadCtxErr)

	v, err := l.Resolve(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestResolve_UnknownName(t *testing.T) {
	l := New(nil)
	defer l.Close()

	_, err := l.Resolve(context.Background(), "nope")
	assert.True(t, errors.Is(err, registry.ErrNotRegistered))

	_, err = l.Resolve(context.Background(), "https://cdn.example.com/mod.js")
	assert.True(t, errors.Is(err, ErrNoFetcher))
}

func TestOnChange(t *testing.T) {
	var mu sync.Mutex
	var sets [][]string
	l := New(registry.NewManifest(registry.Entry{Name: "a", Load: registry.Value(1)}))
	defer l.Close()
	l.OnChange(func(loading []string) {
		mu.Lock()
		sets = append(sets, loading)
		mu.Unlock()
	})

	_, err := l.Resolve(context.Background(), "a")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{"a"}, nil}, sets)
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestClose_ReleasesHandles(t *testing.T) {
	h := &closer{}
	l := New(registry.NewManifest(registry.Entry{Name: "codec", Load: registry.Value(h)}))

	_, err := l.Resolve(context.Background(), "codec")
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.True(t, h.closed)

	_, err = l.Resolve(context.Background(), "codec")
	assert.True(t, errors.Is(err, ErrClosed))
	assert.NoError(t, l.Close())
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lib.js":
			w.Write([]byte("module.exports = { ok: true };"))
		case "/esm":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
			w.Write([]byte("exports.v = 1;"))
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := New(nil, WithFetcher(NewHTTPFetcher()))
	defer l.Close()

	v, err := l.Resolve(context.Background(), srv.URL+"/lib.js")
	require.NoError(t, err)
	script := v.(*Script)
	assert.Equal(t, srv.URL+"/lib.js", script.URL)
	assert.Contains(t, script.Source, "module.exports")

	_, err = l.Resolve(context.Background(), srv.URL+"/esm")
	assert.NoError(t, err)

	_, err = l.Resolve(context.Background(), srv.URL+"/page")
	assert.True(t, errors.Is(err, ErrNotModule))

	_, err = l.Resolve(context.Background(), srv.URL+"/gone.js")
	assert.Error(t, err)
}
