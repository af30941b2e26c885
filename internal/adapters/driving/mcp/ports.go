package mcp

import (
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// Ingest stores new documents. Optional; without it ingest_file is not offered.
	Ingest driving.IngestService

	// Document lists and inspects documents. Optional.
	Document driving.DocumentService

	// Prompt exposes active system prompts. Optional.
	Prompt driving.PromptService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
