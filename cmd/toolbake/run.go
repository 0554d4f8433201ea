package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/toolbake/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <tool-id>",
	Short: "Run a tool interactively",
	Long: `Opens a session of the tool and reads commands from stdin:

  <widget>=<value>   edit an input widget (JSON values are decoded)
  run                force a run
  show               print every widget value
  quit               stop

With --json, each line is a JSON object of input values or one of the
strings "run", "show" and "quit"; every settled run is answered with one
JSON object.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")
		debug, _ := cmd.Flags().GetBool("debug")
		fresh, _ := cmd.Flags().GetBool("fresh")
		values, _ := cmd.Flags().GetString("values")
		sessionID, _ := cmd.Flags().GetString("session")

		return cli.Execute(cli.RunOptions{
			Config:    cfg,
			ToolID:    args[0],
			Headless:  headless,
			JSON:      jsonMode,
			Watch:     watch,
			Debug:     debug,
			Values:    values,
			SessionID: sessionID,
			Fresh:     fresh,
			Input:     cmd.InOrStdin(),
			Output:    cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, no prompts)")
	runCmd.Flags().Bool("json", false, "Read input patches and write outputs as JSON Lines")
	runCmd.Flags().BoolP("watch", "w", false, "Run in development mode with hot-reload")
	runCmd.Flags().Bool("debug", false, "Log lifecycle events to stderr")
	runCmd.Flags().StringP("session", "s", "", "Session id to create or resume")
	runCmd.Flags().Bool("fresh", false, "Discard the session before starting")
	runCmd.Flags().String("values", "", "Initial input values as a JSON object")
}
