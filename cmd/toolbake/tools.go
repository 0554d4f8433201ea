package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/toolbake"
	"github.com/aretw0/toolbake/internal/presentation/tui"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close(context.Background())

		ids, err := eng.Tools(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tools found.")
			return nil
		}

		var md strings.Builder
		md.WriteString("| Tool | Name | Inputs | Outputs |\n|---|---|---|---|\n")
		for _, id := range ids {
			tool, err := eng.Tool(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(&md, "| %s | (error: %v) | | |\n", id, err)
				continue
			}
			fmt.Fprintf(&md, "| %s | %s | %s | %s |\n", id, tool.Name,
				strings.Join(tool.Inputs(), ", "), strings.Join(tool.Outputs(), ", "))
		}
		return render(cmd, md.String())
	},
}

var toolsShowCmd = &cobra.Command{
	Use:   "show <tool-id>",
	Short: "Print a tool definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer eng.Close(context.Background())

		tool, err := eng.Tool(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(tool); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsShowCmd)
}

// openEngine builds a bare engine over the configured tools. No sessions
// are opened, so neither stores nor metrics are wired.
func openEngine(cmd *cobra.Command) (*toolbake.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return toolbake.New(cfg.Tools)
}

func render(cmd *cobra.Command, markdown string) error {
	if r := tui.NewRenderer(); r != nil {
		out, err := r(markdown)
		if err == nil {
			markdown = out
		}
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), markdown)
	return err
}
