package domain

import (
	"fmt"
	"strings"
)

// WidgetRole tells whether a widget feeds the handler or displays its output.
type WidgetRole string

const (
	RoleInput  WidgetRole = "input"
	RoleOutput WidgetRole = "output"
)

// Handler languages understood by the built-in isolates.
const (
	LanguageJavaScript = "javascript"
	LanguageGo         = "go"
)

// WidgetDefinition declares one named slot of a tool.
type WidgetDefinition struct {
	ID      string         `json:"id" yaml:"id" toml:"id" mapstructure:"id"`
	Role    WidgetRole     `json:"role" yaml:"role" toml:"role" mapstructure:"role"`
	Kind    string         `json:"kind" yaml:"kind" toml:"kind" mapstructure:"kind"` // e.g. "text" or "text@1"
	Label   string         `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty" mapstructure:"label"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty" toml:"config,omitempty" mapstructure:"config"`
	Default any            `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty" mapstructure:"default"`
}

// Tool is a widget schema plus handler source and metadata.
// A Tool is immutable for the lifetime of a session; edits produce a new UID.
type Tool struct {
	ID          string             `json:"id" yaml:"id" toml:"id" mapstructure:"id"`
	UID         string             `json:"uid,omitempty" yaml:"uid,omitempty" toml:"uid,omitempty" mapstructure:"uid"`
	Name        string             `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty" mapstructure:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty" mapstructure:"description"`
	Language    string             `json:"language,omitempty" yaml:"language,omitempty" toml:"language,omitempty" mapstructure:"language"`
	Widgets     []WidgetDefinition `json:"widgets" yaml:"widgets" toml:"widgets" mapstructure:"widgets"`
	Handler     string             `json:"handler" yaml:"handler" toml:"handler" mapstructure:"handler"`
	Metadata    map[string]string  `json:"metadata,omitempty" yaml:"metadata,omitempty" toml:"metadata,omitempty" mapstructure:"metadata"`
}

// Validate checks the structural invariants of a tool: a non-empty ID,
// unique widget ids and known roles. Kind checks live in the widget package.
func (t *Tool) Validate() error {
	var problems []string
	if strings.TrimSpace(t.ID) == "" {
		problems = append(problems, "missing id")
	}
	switch t.Language {
	case "", LanguageJavaScript, LanguageGo:
	default:
		problems = append(problems, fmt.Sprintf("unsupported language %q", t.Language))
	}

	seen := make(map[string]bool, len(t.Widgets))
	for i, w := range t.Widgets {
		if w.ID == "" {
			problems = append(problems, fmt.Sprintf("widget %d: missing id", i))
			continue
		}
		if seen[w.ID] {
			problems = append(problems, fmt.Sprintf("widget %q: duplicate id", w.ID))
		}
		seen[w.ID] = true
		if w.Role != RoleInput && w.Role != RoleOutput {
			problems = append(problems, fmt.Sprintf("widget %q: unknown role %q", w.ID, w.Role))
		}
		if w.Kind == "" {
			problems = append(problems, fmt.Sprintf("widget %q: missing kind", w.ID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTool, strings.Join(problems, "; "))
	}
	return nil
}

// Widget returns the definition with the given id.
func (t *Tool) Widget(id string) (WidgetDefinition, bool) {
	for _, w := range t.Widgets {
		if w.ID == id {
			return w, true
		}
	}
	return WidgetDefinition{}, false
}

// WidgetIDs returns the declared ids in declaration order.
func (t *Tool) WidgetIDs() []string {
	ids := make([]string, len(t.Widgets))
	for i, w := range t.Widgets {
		ids[i] = w.ID
	}
	return ids
}

// Inputs returns the ids of input widgets in declaration order.
func (t *Tool) Inputs() []string {
	var ids []string
	for _, w := range t.Widgets {
		if w.Role == RoleInput {
			ids = append(ids, w.ID)
		}
	}
	return ids
}

// Outputs returns the ids of output widgets in declaration order.
func (t *Tool) Outputs() []string {
	var ids []string
	for _, w := range t.Widgets {
		if w.Role == RoleOutput {
			ids = append(ids, w.ID)
		}
	}
	return ids
}

// EffectiveLanguage returns the handler language, defaulting to JavaScript.
func (t *Tool) EffectiveLanguage() string {
	if t.Language == "" {
		return LanguageJavaScript
	}
	return t.Language
}

// Clone returns a copy that shares no slices or maps with t.
// Widget configs and defaults are copied one level deep.
func (t *Tool) Clone() *Tool {
	c := *t
	c.Widgets = make([]WidgetDefinition, len(t.Widgets))
	for i, w := range t.Widgets {
		if w.Config != nil {
			cfg := make(map[string]any, len(w.Config))
			for k, v := range w.Config {
				cfg[k] = v
			}
			w.Config = cfg
		}
		c.Widgets[i] = w
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
