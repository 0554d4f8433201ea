package dsl

import (
	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/widget"
)

// ToolBuilder provides a fluent API for configuring a tool.
// Label, Default and Config apply to the widget added last.
type ToolBuilder struct {
	tool    domain.Tool
	last    int
	builder *Builder
}

// Name sets the display name.
func (t *ToolBuilder) Name(name string) *ToolBuilder {
	t.tool.Name = name
	return t
}

// Describe sets the description.
func (t *ToolBuilder) Describe(text string) *ToolBuilder {
	t.tool.Description = text
	return t
}

// Handler sets the JavaScript handler source.
func (t *ToolBuilder) Handler(source string) *ToolBuilder {
	t.tool.Language = domain.LanguageJavaScript
	t.tool.Handler = source
	return t
}

// GoHandler sets a Go handler source. It must define Handle.
func (t *ToolBuilder) GoHandler(source string) *ToolBuilder {
	t.tool.Language = domain.LanguageGo
	t.tool.Handler = source
	return t
}

// Input adds an input widget of the given kind ("text", "number@1", ...).
func (t *ToolBuilder) Input(id, kind string) *ToolBuilder {
	return t.widget(id, domain.RoleInput, kind)
}

// Output adds an output widget of the given kind.
func (t *ToolBuilder) Output(id, kind string) *ToolBuilder {
	return t.widget(id, domain.RoleOutput, kind)
}

// Button adds a button input. Pressing it triggers a run.
func (t *ToolBuilder) Button(id, label string) *ToolBuilder {
	return t.widget(id, domain.RoleInput, widget.KindButton).Label(label)
}

func (t *ToolBuilder) widget(id string, role domain.WidgetRole, kind string) *ToolBuilder {
	t.tool.Widgets = append(t.tool.Widgets, domain.WidgetDefinition{
		ID:   id,
		Role: role,
		Kind: kind,
	})
	t.last = len(t.tool.Widgets) - 1
	return t
}

// Label sets the label of the last widget.
func (t *ToolBuilder) Label(label string) *ToolBuilder {
	if w := t.current(); w != nil {
		w.Label = label
	}
	return t
}

// Default sets the initial value of the last widget.
func (t *ToolBuilder) Default(value any) *ToolBuilder {
	if w := t.current(); w != nil {
		w.Default = value
	}
	return t
}

// Config sets one configuration key of the last widget.
func (t *ToolBuilder) Config(key string, value any) *ToolBuilder {
	if w := t.current(); w != nil {
		if w.Config == nil {
			w.Config = make(map[string]any)
		}
		w.Config[key] = value
	}
	return t
}

// Meta adds a metadata entry to the tool.
func (t *ToolBuilder) Meta(key, value string) *ToolBuilder {
	if t.tool.Metadata == nil {
		t.tool.Metadata = make(map[string]string)
	}
	t.tool.Metadata[key] = value
	return t
}

// Add starts the next tool of the same catalog.
func (t *ToolBuilder) Add(id string) *ToolBuilder {
	return t.builder.Add(id)
}

func (t *ToolBuilder) current() *domain.WidgetDefinition {
	if t.last < 0 {
		return nil
	}
	return &t.tool.Widgets[t.last]
}
