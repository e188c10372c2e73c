package main

import (
	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/mcp"
)

var mcpAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the index to AI assistants over MCP",
	Long: `Start a Model Context Protocol server exposing the search and statistics
tools and the kotae://documents/{id} resource.

By default the server speaks JSON-RPC over stdio, which is what desktop
assistants launch. Use --addr to serve the streamable HTTP transport instead.

Assistant configuration:
  {
    "mcpServers": {
      "kotae": {
        "command": "/path/to/kotae",
        "args": ["mcp", "--config", "/path/to/config.yaml"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", "", "serve streamable HTTP on this address instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	c := a.components

	server, err := mcp.NewServer(&mcp.Ports{
		Search:     c.Engine,
		Statistics: c.Indexer,
		Documents:  c.Indexer,
	}, version, mcp.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if mcpAddr != "" {
		cmd.PrintErrf("MCP server listening on http://%s\n", mcpAddr)
		return server.RunHTTP(cmd.Context(), mcpAddr)
	}
	return server.Run(cmd.Context())
}
