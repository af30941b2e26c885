// Package tui provides an interactive terminal chat over the knowledge base.
// It is a driving adapter like the CLI and MCP server.
package tui

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("tui: query service is required")
