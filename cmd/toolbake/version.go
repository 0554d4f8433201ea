package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/toolbake"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of toolbake",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "toolbake version %s\n", strings.TrimSpace(toolbake.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
