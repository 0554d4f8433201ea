package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/toolbake/pkg/adapters/memory"
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/widget"
)

// Builder manages the catalog construction.
type Builder struct {
	order []string
	tools map[string]*ToolBuilder
}

// New creates a new catalog builder.
func New() *Builder {
	return &Builder{
		tools: make(map[string]*ToolBuilder),
	}
}

// Add creates a new tool in the catalog.
// If the tool already exists, it returns the existing builder.
func (b *Builder) Add(id string) *ToolBuilder {
	if tb, ok := b.tools[id]; ok {
		return tb
	}
	tb := &ToolBuilder{
		tool:    domain.Tool{ID: id},
		last:    -1,
		builder: b,
	}
	b.tools[id] = tb
	b.order = append(b.order, id)
	return tb
}

// Tools validates and returns every tool, in the order they were added.
func (b *Builder) Tools() ([]*domain.Tool, error) {
	tools := make([]*domain.Tool, 0, len(b.order))
	var errs []error
	for _, id := range b.order {
		tool, err := b.tools[id].Build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tools = append(tools, tool)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return tools, nil
}

// Build compiles the catalog into an in-memory repository.
func (b *Builder) Build() (*memory.Repository, error) {
	tools, err := b.Tools()
	if err != nil {
		return nil, err
	}
	repo, err := memory.NewRepository(tools...)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory repository: %w", err)
	}
	return repo, nil
}

// Build validates the tool and resolves its widget kinds.
func (t *ToolBuilder) Build() (*domain.Tool, error) {
	tool := t.tool.Clone()
	if err := tool.Validate(); err != nil {
		return nil, fmt.Errorf("tool %s: %w", tool.ID, err)
	}
	if _, err := widget.Resolve(tool); err != nil {
		return nil, fmt.Errorf("tool %s: %w", tool.ID, err)
	}
	return tool, nil
}
