/*
Package dsl provides a Go DSL for programmatically constructing ToolBake tools.

It defines tools with a fluent builder instead of JSON, YAML or TOML files,
which is useful for embedding tools in a Go program, generating them, and
testing handlers.

Example usage:

	package main

	import (
		"context"

		"github.com/aretw0/toolbake"
		"github.com/aretw0/toolbake/pkg/dsl"
	)

	func main() {
		b := dsl.New()

		b.Add("greet").
			Name("Greeter").
			Input("name", "text").Label("Your name").Default("world").
			Output("greeting", "text").
			Handler(`function handler(input) {
				return { greeting: "Hello, " + input.name + "!" };
			}`)

		// The result is an in-memory ports.ToolRepository.
		repo, err := b.Build()
		if err != nil {
			panic(err)
		}
		eng, _ := toolbake.New("greeter", toolbake.WithRepository(repo))
		sess, _ := eng.Open(context.Background(), "greet")
		// ...
	}
*/
package dsl
