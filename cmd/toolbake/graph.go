package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/toolbake/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <tool-id>",
	Short: "Export the data flow of a tool",
	Long: `Outputs a Mermaid diagram (graph LR) of a tool: inputs and buttons feed the
handler, the handler fills the outputs and requests capabilities.
With --session, widgets holding a value in that session are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())
			tool, err := eng.Tool(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(tool, nil))
			return nil
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())
		tool, err := app.Engine.Tool(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		snap, err := app.Snapshots.Load(cmd.Context(), sessionID)
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", sessionID, err)
		}
		overlay := &graph.Overlay{}
		for _, id := range tool.WidgetIDs() {
			if v, ok := snap.Values[id]; ok && v != nil && v != "" {
				overlay.Filled = append(overlay.Filled, id)
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(tool, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "Highlight the values of a persisted session")
}
