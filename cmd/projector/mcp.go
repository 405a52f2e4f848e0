package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/abelbrown/projector/internal/logging"
	"github.com/abelbrown/projector/internal/mcptool"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs projector as an MCP (Model Context Protocol) server over stdio,
exposing the project_sentences tool.`,
		Example: `  # Start MCP server (typically called by an MCP client)
  projector mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "projector": {
  #       "command": "projector",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
		RunE: runMCP,
	}
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	server := mcpserver.NewMCPServer("projector", versionInfo.Version)
	mcptool.RegisterTools(server, e.coord, e.store, e.cfg.RequestDefaults())

	logging.Info("MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		logging.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
