package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/toolbake/internal/presentation/graph"
	"github.com/aretw0/toolbake/pkg/domain"
)

func sampleTool() *domain.Tool {
	return &domain.Tool{
		ID:   "fetch-user",
		Name: "Fetch \"User\"",
		Widgets: []domain.WidgetDefinition{
			{ID: "user.id", Role: domain.RoleInput, Kind: "number", Label: "User ID"},
			{ID: "go", Role: domain.RoleInput, Kind: "button@1"},
			{ID: "out", Role: domain.RoleOutput, Kind: "json"},
		},
		Handler: `async function handler(i, c) {
			const http = await requestCapability("process:curl");
			const fmt = await requestCapability('pretty');
			const again = await requestCapability("process:curl");
			return { out: fmt(http.run({ id: i["user.id"] })) };
		}`,
	}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Shapes",
			contains: []string{
				"graph LR",
				`handler[["Fetch 'User' <br/> javascript"]]`,
				`w_user_id[/"User ID <br/> number"/]`,
				`w_go(("go <br/> button@1"))`,
				`w_out["out <br/> json"]`,
				`c_process_curl[("process:curl")]`,
				`c_pretty[("pretty")]`,
			},
			excludes: []string{"classDef"},
		},
		{
			name: "Edges",
			contains: []string{
				"w_user_id --> handler",
				"w_go -. click .-> handler",
				"handler --> w_out",
				"c_pretty -.-> handler",
			},
		},
		{
			name:    "Overlay",
			overlay: &graph.Overlay{Filled: []string{"user.id", "out", "missing", "out"}, Failed: true},
			contains: []string{
				"classDef filled",
				"class w_user_id filled;",
				"class w_out filled;",
				"class handler failed;",
			},
			excludes: []string{"w_missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(sampleTool(), tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() missing %q\n%s", want, got)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("GenerateMermaid() should not contain %q", unwanted)
				}
			}
			if strings.Count(got, "class w_out filled;") > 1 {
				t.Error("filled widgets are styled once")
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	got := graph.Capabilities(sampleTool().Handler)
	if len(got) != 2 || got[0] != "pretty" || got[1] != "process:curl" {
		t.Errorf("Capabilities() = %v", got)
	}
	if len(graph.Capabilities("function handler() {}")) != 0 {
		t.Error("expected no capabilities")
	}
}
