/*
Package toolbake is a reactive runtime for small interactive tools.

A tool is a schema of named widgets plus a handler. Whenever an input widget
changes, the runtime runs the handler in an isolated interpreter with a
snapshot of every widget value and merges the returned patch into the
output widgets.

# Concept

The runtime keeps at most one run in flight per session. Triggers that arrive
while a handler runs are coalesced so that only the latest one runs next.
Handlers may stream progress patches, write log lines and request named
capabilities from a manifest. Capabilities are loaded once per session and
shared by concurrent requests.

Handlers are JavaScript by default (goja) or Go (yaegi):

	function handler(input, changed, progress) {
		return { b: input.a.toUpperCase() };
	}

# Key Features

  - Latest-wins dispatch: rapid edits never queue more than one pending run.
  - Error containment: a failing handler keeps the last good outputs and raises a notice.
  - Pluggable storage: tools and session snapshots live in memory, files, Redis or a loam catalog.
  - Adapters: a CLI, an HTTP API with Server-Sent Events and an MCP server.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/toolbake"
	)

	func main() {
		eng, err := toolbake.New("./tools")
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close(context.Background())

		ctx := context.Background()
		sess, err := eng.Open(ctx, "upper")
		if err != nil {
			log.Fatal(err)
		}
		if _, err := sess.Edit("a", "hello"); err != nil {
			log.Fatal(err)
		}
		if err := sess.Wait(ctx); err != nil {
			log.Fatal(err)
		}
		b, _ := sess.Get("b")
		fmt.Println(b) // HELLO
	}
*/
package toolbake
