package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/toolbake/pkg/domain"
	"github.com/aretw0/toolbake/pkg/sandbox/govm"
	"github.com/aretw0/toolbake/pkg/sandbox/jsvm"
	"github.com/aretw0/toolbake/pkg/widget"
)

var errInvalidTools = errors.New("some tools are invalid")

var validateCmd = &cobra.Command{
	Use:   "validate [tool-id...]",
	Short: "Check tool definitions without running them",
	Long: `Decodes each tool, resolves its widget kinds and compiles its handler.
With no arguments every tool in the directory is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close(context.Background())

		ids := args
		if len(ids) == 0 {
			if ids, err = eng.Tools(cmd.Context()); err != nil {
				return err
			}
		}

		js, golang := jsvm.New(), govm.New()
		failed := 0
		for _, id := range ids {
			tool, err := eng.Tool(cmd.Context(), id)
			if err == nil {
				err = check(tool, js, golang)
			}
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", id, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d", errInvalidTools, failed, len(ids))
		}
		return nil
	},
}

func check(tool *domain.Tool, js *jsvm.Isolate, golang *govm.Isolate) error {
	if err := tool.Validate(); err != nil {
		return err
	}
	if _, err := widget.Resolve(tool); err != nil {
		return err
	}
	if tool.EffectiveLanguage() == domain.LanguageGo {
		return golang.Check(tool.Handler)
	}
	return js.Check(tool.Handler)
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
