package toolbake_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aretw0/toolbake"
	"github.com/aretw0/toolbake/pkg/dsl"
)

// ExampleNew_memory builds a tool with the DSL and edits one input.
// No directory is needed when a repository is provided.
func ExampleNew_memory() {
	b := dsl.New()
	b.Add("greet").
		Input("name", "text").
		Output("greeting", "text").
		Handler(`function handler(input) {
			return { greeting: "Hello, " + (input.name || "world") + "!" };
		}`)
	repo, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	engine, err := toolbake.New("", toolbake.WithRepository(repo))
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	defer engine.Close(ctx)

	sess, err := engine.Open(ctx, "greet")
	if err != nil {
		log.Fatal(err)
	}
	if _, err := sess.Edit("name", "Ada"); err != nil {
		log.Fatal(err)
	}
	if err := sess.Wait(ctx); err != nil {
		log.Fatal(err)
	}

	greeting, _ := sess.Get("greeting")
	fmt.Println(greeting)
	// Output: Hello, Ada!
}

// ExampleRunner drives a session from line commands, as the CLI does.
func ExampleRunner() {
	b := dsl.New()
	b.Add("upper").
		Input("a", "text").
		Output("b", "text").
		Handler(`function handler(input) { return { b: (input.a || "").toUpperCase() }; }`)
	repo, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	engine, err := toolbake.New("", toolbake.WithRepository(repo))
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	defer engine.Close(ctx)

	sess, err := engine.Open(ctx, "upper")
	if err != nil {
		log.Fatal(err)
	}

	r := toolbake.NewRunner()
	r.Input = strings.NewReader("a=bake\nquit\n")
	r.Output = os.Stdout
	r.Headless = true
	if err := r.Run(ctx, sess); err != nil {
		log.Fatal(err)
	}
	// Output: b: BAKE
}
