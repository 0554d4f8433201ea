package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/toolbake/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "toolbake",
	Short: "ToolBake runs reactive tools defined as widgets plus a handler",
	Long: `ToolBake loads tool definitions (widgets plus a JavaScript or Go handler)
and runs them reactively: every input change re-runs the handler and merges
its outputs. Tools can be driven from the terminal, over HTTP or as MCP tools.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the tools")
	rootCmd.PersistentFlags().String("config", "", "Path to toolbake.yaml (default: looked up in --dir)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the project configuration for a command. Without a config
// file, tools are read from --dir and sessions stored under it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.Find(dir)
	}

	var cfg config.Config
	if path == "" {
		cfg = config.Default()
		cfg.Tools = dir
		cfg.Sessions.Path = filepath.Join(dir, cfg.Sessions.Path)
	} else {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
		if cmd.Flags().Changed("dir") && cmd.Flags().Changed("config") {
			cfg.Tools = dir
		}
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}
