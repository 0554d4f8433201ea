package dsl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/session"
)

func TestBuilder_Catalog(t *testing.T) {
	b := New()

	b.Add("greet").
		Name("Greeter").
		Describe("Says hello").
		Input("name", "text").Label("Your name").Default("world").
		Input("lang", "select").Config("options", []any{"en", "pt"}).Default("en").
		Button("go", "Greet").
		Output("greeting", "text").
		Meta("category", "demo").
		Handler(`function handler(input) {
			const hello = input.lang === "pt" ? "Olá" : "Hello";
			return { greeting: hello + ", " + input.name + "!" };
		}`).
		Add("echo").
		Input("a", "text").
		Output("b", "text").
		Handler(`(input) => ({ b: input.a })`)

	tools, err := b.Tools()
	if err != nil {
		t.Fatalf("Tools() failed: %v", err)
	}
	if len(tools) != 2 || tools[0].ID != "greet" || tools[1].ID != "echo" {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	greet := tools[0]
	if greet.Name != "Greeter" || greet.Description != "Says hello" || greet.Metadata["category"] != "demo" {
		t.Errorf("unexpected metadata: %+v", greet)
	}
	if got := greet.Inputs(); len(got) != 3 || got[2] != "go" {
		t.Errorf("unexpected inputs: %v", got)
	}
	name, _ := greet.Widget("name")
	if name.Label != "Your name" || name.Default != "world" {
		t.Errorf("unexpected name widget: %+v", name)
	}
	lang, _ := greet.Widget("lang")
	if opts, ok := lang.Config["options"].([]any); !ok || len(opts) != 2 {
		t.Errorf("unexpected lang config: %+v", lang.Config)
	}
	if greet.Language != domain.LanguageJavaScript {
		t.Errorf("expected javascript, got %q", greet.Language)
	}
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New()
	first := b.Add("x")
	if b.Add("x") != first {
		t.Error("Add should return the existing builder")
	}
}

func TestBuilder_Invalid(t *testing.T) {
	b := New()
	b.Add("dup").
		Input("a", "text").
		Input("a", "text")
	b.Add("kind").
		Input("a", "hologram")

	_, err := b.Build()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, domain.ErrInvalidTool) {
		t.Errorf("expected ErrInvalidTool, got %v", err)
	}
}

func TestBuilder_LabelWithoutWidget(t *testing.T) {
	tool, err := New().Add("empty").Label("ignored").Default(1).Config("k", "v").Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(tool.Widgets) != 0 {
		t.Errorf("expected no widgets, got %+v", tool.Widgets)
	}
}

func TestBuilder_RunsInSession(t *testing.T) {
	b := New()
	b.Add("greet").
		Input("name", "text").Default("world").
		Output("greeting", "text").
		GoHandler(`import "strings"

func Handle(inputs map[string]any, changed string, progress func(map[string]any), require func(string) (any, error)) (map[string]any, error) {
	name, _ := inputs["name"].(string)
	return map[string]any{"greeting": "hi " + strings.ToUpper(name)}, nil
}
`)

	repo, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	mgr := session.NewManager(repo)
	defer mgr.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := mgr.Open(ctx, "greet")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := sess.Edit("name", "bob"); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if err := sess.Wait(ctx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if got, _ := sess.Get("greeting"); got != "hi BOB" {
		t.Errorf("expected 'hi BOB', got %v (%+v)", got, sess.Status().LastRun)
	}
}
