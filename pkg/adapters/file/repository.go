package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/toolbake/pkg/domain"
)

// GlobalScriptFile is the name of the global script inside a Repository.
const GlobalScriptFile = "_global.js"

// Repository implements ports.ToolRepository and ports.ScriptStore on a
// directory of tool files, one tool per file.
type Repository struct {
	BasePath string
	// Format is the extension used for new tools. Defaults to ".yaml".
	Format string
	// Exclude lists file names that are never read as tools.
	Exclude []string
}

// NewRepository creates a repository rooted at basePath.
func NewRepository(basePath string) *Repository {
	return &Repository{BasePath: basePath, Format: ".yaml"}
}

func (r *Repository) find(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", domain.ErrToolNotFound, id)
	}
	for _, ext := range Extensions {
		if slices.Contains(r.Exclude, id+ext) {
			continue
		}
		path := filepath.Join(r.BasePath, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
}

// Get reads the tool file for id.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Tool, error) {
	path, err := r.find(id)
	if err != nil {
		return nil, err
	}
	tool, err := ReadTool(path)
	if err != nil {
		return nil, err
	}
	tool.ID = id
	return tool, nil
}

// List returns the ids of all tool files, sorted.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !slices.Contains(Extensions, ext) || slices.Contains(r.Exclude, entry.Name()) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Save writes the tool, keeping the format of an existing file.
func (r *Repository) Save(ctx context.Context, tool *domain.Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}
	path, err := r.find(tool.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrToolNotFound) {
			return err
		}
		format := r.Format
		if format == "" {
			format = ".yaml"
		}
		path = filepath.Join(r.BasePath, tool.ID+format)
	}
	data, err := Encode(filepath.Ext(path), tool)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// Delete removes the tool file.
func (r *Repository) Delete(ctx context.Context, id string) error {
	path, err := r.find(id)
	if errors.Is(err, domain.ErrToolNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete tool file: %w", err)
	}
	return nil
}

// LoadGlobal reads the global script file.
func (r *Repository) LoadGlobal(ctx context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.BasePath, GlobalScriptFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read global script: %w", err)
	}
	return string(data), nil
}

// SaveGlobal writes the global script file.
func (r *Repository) SaveGlobal(ctx context.Context, script string) error {
	return writeAtomic(filepath.Join(r.BasePath, GlobalScriptFile), []byte(script))
}
