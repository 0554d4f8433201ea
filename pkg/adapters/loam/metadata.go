package loam

import (
	"fmt"
	"strings"

	"github.com/aretw0/toolbake/pkg/domain"
)

// ToolMetadata is the frontmatter of a tool document. The document body is
// the handler source.
type ToolMetadata struct {
	ID          string           `json:"id" mapstructure:"id"`
	UID         string           `json:"uid" mapstructure:"uid"`
	Name        string           `json:"name" mapstructure:"name"`
	Description string           `json:"description" mapstructure:"description"`
	Language    string           `json:"language" mapstructure:"language"`
	Widgets     []WidgetMetadata `json:"widgets" mapstructure:"widgets"`

	// Metadata may be nested; it is flattened with '-' separators.
	Metadata map[string]any `json:"metadata" mapstructure:"metadata"`
}

// WidgetMetadata declares one widget in frontmatter.
type WidgetMetadata struct {
	ID      string         `json:"id" mapstructure:"id"`
	Role    string         `json:"role" mapstructure:"role"`
	Kind    string         `json:"kind" mapstructure:"kind"`
	Label   string         `json:"label" mapstructure:"label"`
	Config  map[string]any `json:"config" mapstructure:"config"`
	Default any            `json:"default" mapstructure:"default"`
}

func (m ToolMetadata) tool(docID, content string) *domain.Tool {
	id := m.ID
	if id == "" {
		id = docID
	}
	t := &domain.Tool{
		ID:          trimExtension(id),
		UID:         m.UID,
		Name:        m.Name,
		Description: m.Description,
		Language:    m.Language,
		Handler:     strings.TrimSpace(content),
		Widgets:     make([]domain.WidgetDefinition, len(m.Widgets)),
	}
	for i, w := range m.Widgets {
		role := domain.WidgetRole(w.Role)
		if role == "" {
			role = domain.RoleInput
		}
		t.Widgets[i] = domain.WidgetDefinition{
			ID:      w.ID,
			Role:    role,
			Kind:    w.Kind,
			Label:   w.Label,
			Config:  w.Config,
			Default: w.Default,
		}
	}
	if len(m.Metadata) > 0 {
		t.Metadata = flattenMetadata(m.Metadata)
	}
	return t
}

// flattenMetadata converts a nested map into a flat map[string]string,
// joining keys with '-'.
func flattenMetadata(src map[string]any) map[string]string {
	res := make(map[string]string)
	var visit func(prefix string, v any)

	visit = func(prefix string, v any) {
		switch val := v.(type) {
		case map[string]any:
			for k, sub := range val {
				fullKey := k
				if prefix != "" {
					fullKey = prefix + "-" + k
				}
				visit(fullKey, sub)
			}
		case map[any]any: // some YAML decoders produce this
			for k, sub := range val {
				fullKey := fmt.Sprint(k)
				if prefix != "" {
					fullKey = prefix + "-" + fullKey
				}
				visit(fullKey, sub)
			}
		case nil:
			res[prefix] = ""
		default:
			res[prefix] = fmt.Sprint(val)
		}
	}
	visit("", src)
	return res
}
