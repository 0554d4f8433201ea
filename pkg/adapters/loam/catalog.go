// Package loam serves tools from a directory of markdown, JSON or YAML
// documents through the Loam library.
package loam

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/toolbake/pkg/domain"
)

// ErrReadOnly is returned by write operations.
var ErrReadOnly = errors.New("loam catalog is read-only")

// WatchPattern selects the documents reported by Watch.
const WatchPattern = "**/*.{md,json,yaml,yml}"

// Catalog implements ports.ToolRepository and ports.Watchable on a Loam
// repository. The global script, if any, is the document named GlobalScriptID.
type Catalog struct {
	Repo *loam.TypedRepository[ToolMetadata]
}

// GlobalScriptID is the document holding the global script.
const GlobalScriptID = "_global"

// New creates a catalog.
func New(repo *loam.TypedRepository[ToolMetadata]) *Catalog {
	return &Catalog{Repo: repo}
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string) (*Catalog, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode keeps numbers as json.Number across formats.
	repo, err := loam.Init(abs,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[ToolMetadata](repo)), nil
}

// Get returns the tool with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Tool, error) {
	if id == GlobalScriptID {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
	}
	doc, err := c.Repo.Get(ctx, id)
	if err == nil {
		return doc.Data.tool(doc.ID, doc.Content), nil
	}

	// The document may be stored under a different file name than its id.
	docs, lerr := c.Repo.List(ctx)
	if lerr != nil {
		return nil, fmt.Errorf("loam list failed: %w", lerr)
	}
	for _, d := range docs {
		t := d.Data.tool(d.ID, d.Content)
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
}

// List returns all tool IDs, sorted. Two documents declaring the same ID
// are an error.
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	docs, err := c.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)
		if id == GlobalScriptID {
			continue
		}
		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Save is not supported.
func (c *Catalog) Save(context.Context, *domain.Tool) error { return ErrReadOnly }

// Delete is not supported.
func (c *Catalog) Delete(context.Context, string) error { return ErrReadOnly }

// LoadGlobal returns the body of the global script document, or "".
func (c *Catalog) LoadGlobal(ctx context.Context) (string, error) {
	doc, err := c.Repo.Get(ctx, GlobalScriptID)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(doc.Content), nil
}

// SaveGlobal is not supported.
func (c *Catalog) SaveGlobal(context.Context, string) error { return ErrReadOnly }

// Watch implements ports.Watchable.
func (c *Catalog) Watch(ctx context.Context) (<-chan string, error) {
	events, err := c.Repo.Watch(ctx, WatchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
