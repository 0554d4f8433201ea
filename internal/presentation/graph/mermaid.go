package graph

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/widget"
)

// Overlay contains session state to visualize on the diagram.
type Overlay struct {
	// Filled lists widgets that hold a value.
	Filled []string
	// Failed marks the handler as failed in the last run.
	Failed bool
}

const handlerNode = "handler"

var capabilityCall = regexp.MustCompile(`requestCapability\(\s*["'\x60]([^"'\x60]+)["'\x60]`)

// GenerateMermaid produces a Mermaid flowchart of a tool's data flow.
// It applies semantic styling:
// - Input: [/Parallelogram/]
// - Button: ((Circle))
// - Handler: [[Subroutine]]
// - Capability: [(Cylinder)]
// - Output: [Rectangle]
func GenerateMermaid(tool *domain.Tool, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	handlerLabel := tool.ID
	if tool.Name != "" {
		handlerLabel = tool.Name
	}
	fmt.Fprintf(&sb, "    %s[[\"%s <br/> %s\"]]\n", handlerNode, escape(handlerLabel), tool.EffectiveLanguage())

	for _, w := range tool.Widgets {
		safeID := "w_" + sanitizeMermaidID(w.ID)
		label := w.ID
		if w.Label != "" {
			label = w.Label
		}
		label = fmt.Sprintf("%s <br/> %s", escape(label), w.Kind)

		kind, _, _ := widget.ParseRef(w.Kind)
		switch {
		case w.Role == domain.RoleOutput:
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", safeID, label)
			fmt.Fprintf(&sb, "    %s --> %s\n", handlerNode, safeID)
		case kind == widget.KindButton:
			fmt.Fprintf(&sb, "    %s((\"%s\"))\n", safeID, label)
			fmt.Fprintf(&sb, "    %s -. click .-> %s\n", safeID, handlerNode)
		default:
			fmt.Fprintf(&sb, "    %s[/\"%s\"/]\n", safeID, label)
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, handlerNode)
		}
	}

	for _, name := range Capabilities(tool.Handler) {
		safeID := "c_" + sanitizeMermaidID(name)
		fmt.Fprintf(&sb, "    %s[(\"%s\")]\n", safeID, escape(name))
		fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, handlerNode)
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef filled fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Filled {
			if _, ok := tool.Widget(id); !ok || seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class w_%s filled;\n", sanitizeMermaidID(id))
		}
		if overlay.Failed {
			fmt.Fprintf(&sb, "    class %s failed;\n", handlerNode)
		}
	}

	return sb.String()
}

// Capabilities returns the literal capability names a handler requests, sorted.
func Capabilities(source string) []string {
	var names []string
	for _, m := range capabilityCall.FindAllStringSubmatch(source, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	slices.Sort(names)
	return names
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
