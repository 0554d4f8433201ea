package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/toolbake/internal/cli"
	"github.com/aretw0/toolbake/pkg/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Publishes every tool as an MCP tool. Each call opens a session, applies the
arguments to the input widgets, runs the handler once and returns the outputs.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("transport") {
			cfg.MCP.Transport, _ = cmd.Flags().GetString("transport")
		}
		if cmd.Flags().Changed("port") {
			cfg.MCP.Port, _ = cmd.Flags().GetInt("port")
		}

		app, err := cli.Build(cfg, cli.BuildOptions{})
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := mcp.NewServer(app.Engine.Manager(), mcp.WithLogger(app.Logger))
		if err := srv.Sync(ctx); err != nil {
			return err
		}
		// Republish the tool list whenever a definition changes.
		if changes, err := app.Engine.Watch(ctx); err == nil {
			go func() {
				for id := range changes {
					app.Logger.Info("tool changed, republishing", "tool_id", id)
					if err := srv.Sync(ctx); err != nil {
						app.Logger.Error("failed to republish tools", "err", err)
					}
				}
			}()
		}

		switch cfg.MCP.Transport {
		case "stdio", "":
			app.Logger.Info("Starting ToolBake MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			app.Logger.Info("Starting ToolBake MCP Server (SSE)", "port", cfg.MCP.Port)
			if err := srv.ServeSSE(ctx, cfg.MCP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			app.Logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", cfg.MCP.Transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
