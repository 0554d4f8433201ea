package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/toolbake/pkg/domain"
)

// DefaultToolPrefix namespaces tool keys.
const DefaultToolPrefix = "toolbake:tool:"

// Repository implements ports.ToolRepository and ports.ScriptStore on Redis.
// Tools live in one hash keyed by tool id.
type Repository struct {
	client *backend.Client
	prefix string
}

// NewRepository creates a tool repository. An empty prefix uses DefaultToolPrefix.
func NewRepository(client *backend.Client, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultToolPrefix
	}
	return &Repository{client: client, prefix: prefix}
}

func (r *Repository) tools() string { return r.prefix + "all" }
func (r *Repository) global() string { return r.prefix + "global-script" }

// Get returns the tool with the given ID.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Tool, error) {
	data, err := r.client.HGet(ctx, r.tools(), id).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tool: %w", err)
	}
	var tool domain.Tool
	if err := json.Unmarshal(data, &tool); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool %s: %w", id, err)
	}
	return &tool, nil
}

// List returns all tool IDs, sorted.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.HKeys(ctx, r.tools()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// Save creates or replaces a tool.
func (r *Repository) Save(ctx context.Context, tool *domain.Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(tool)
	if err != nil {
		return fmt.Errorf("failed to marshal tool: %w", err)
	}
	if err := r.client.HSet(ctx, r.tools(), tool.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to save tool: %w", err)
	}
	return nil
}

// Delete removes a tool.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.tools(), id).Err(); err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	return nil
}

// LoadGlobal returns the global script.
func (r *Repository) LoadGlobal(ctx context.Context) (string, error) {
	script, err := r.client.Get(ctx, r.global()).Result()
	if errors.Is(err, backend.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load global script: %w", err)
	}
	return script, nil
}

// SaveGlobal replaces the global script.
func (r *Repository) SaveGlobal(ctx context.Context, script string) error {
	if err := r.client.Set(ctx, r.global(), script, 0).Err(); err != nil {
		return fmt.Errorf("failed to save global script: %w", err)
	}
	return nil
}
