package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can query and
ingest through sercha-rag.

By default the server speaks JSON-RPC over stdio. Use --http to serve over
HTTP instead; without --port the first free port from 8765 is used.

Examples:
  # Stdio mode
  sercha-rag mcp serve

  # HTTP mode on a chosen port
  sercha-rag mcp serve --http --port 8080

Desktop client configuration:
  {
    "mcpServers": {
      "sercha-rag": {
        "command": "/path/to/sercha-rag",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

var (
	mcpHTTP bool
	mcpPort int
	mcpHost string
)

func init() {
	mcpServeCmd.Flags().BoolVar(&mcpHTTP, "http", false, "serve over HTTP instead of stdio")
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = first free port from 8765)")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "127.0.0.1", "HTTP listen address")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	server, err := mcp.NewServer(&mcp.Ports{
		Query:    queryService,
		Ingest:   ingestService,
		Document: documentService,
		Prompt:   promptService,
	}, mcp.WithVersion(version))
	if err != nil {
		return err
	}

	if !mcpHTTP && mcpPort == 0 {
		return server.Run(cmd.Context())
	}

	port := mcpPort
	if port == 0 {
		port, err = mcp.FindAvailablePort(mcpHost, mcp.DefaultPortStart, mcp.DefaultPortEnd)
		if err != nil {
			return err
		}
	}
	addr := net.JoinHostPort(mcpHost, strconv.Itoa(port))
	fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://%s\n", addr)
	return server.RunHTTP(cmd.Context(), addr)
}
