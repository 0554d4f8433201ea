package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// ErrNotModule is returned when a remote resource is not module-shaped.
var ErrNotModule = errors.New("resource is not a module")

// DefaultMaxModuleSize bounds the size of a fetched module.
const DefaultMaxModuleSize = 4 << 20

// HTTPFetcher fetches JavaScript modules over plain HTTP(S).
type HTTPFetcher struct {
	Client  *http.Client
	MaxSize int64
}

// NewHTTPFetcher creates a fetcher using http.DefaultClient.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient, MaxSize: DefaultMaxModuleSize}
}

// Fetch downloads ref. The resource must have a .js/.mjs/.cjs path or be
// served with a JavaScript content type.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) (*Script, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse module reference: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrNotModule, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/javascript, application/javascript;q=0.9")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch module: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch module: unexpected status %s", resp.Status)
	}
	if !moduleShaped(u.Path, resp.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("%w: %s", ErrNotModule, ref)
	}

	limit := f.MaxSize
	if limit <= 0 {
		limit = DefaultMaxModuleSize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("module exceeds %d bytes", limit)
	}
	return &Script{URL: ref, Source: string(body)}, nil
}

func moduleShaped(p, contentType string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasSuffix(mt, "/javascript") || strings.HasSuffix(mt, "/ecmascript")
}
