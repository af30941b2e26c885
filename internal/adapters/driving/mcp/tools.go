package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// MaxIngestFileSize bounds files accepted by the ingest_file tool.
const MaxIngestFileSize = 50 << 20

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Query          string   `json:"query" jsonschema:"the question to answer from the knowledge base"`
	TopK           int      `json:"top_k,omitempty" jsonschema:"maximum number of passages to use as context (default 5, max 50)"`
	DocumentID     string   `json:"document_id,omitempty" jsonschema:"restrict retrieval to one document"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty" jsonschema:"minimum cosine similarity between -1 and 1"`
	Prompt         string   `json:"prompt,omitempty" jsonschema:"system prompt name (default: default)"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer           string           `json:"answer"`
	Citations        []CitationOutput `json:"citations"`
	GenerationFailed bool             `json:"generation_failed"`
	GenerationError  string           `json:"generation_error,omitempty"`
	TotalTokens      int              `json:"total_tokens"`
	CostUSD          *float64         `json:"cost_usd,omitempty"`
}

// CitationOutput pairs a passage label with its source chunk and text.
type CitationOutput struct {
	Label      string  `json:"label"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// IngestFileInput is the input schema for the ingest_file tool.
type IngestFileInput struct {
	Path        string `json:"path" jsonschema:"absolute path of a local file to ingest"`
	ContentType string `json:"content_type,omitempty" jsonschema:"MIME type; detected from the file when omitted"`
}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput describes one ingested document.
type DocumentOutput struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	ChunkCount  int    `json:"chunk_count"`
	CreatedAt   string `json:"created_at"`
}

type listDocumentsInput struct{}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from ingested documents, citing the passages used",
	}, s.handleQuery)

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest_file",
			Description: "Ingest a local file into the knowledge base. Re-ingesting identical content is a no-op",
		}, s.handleIngestFile)
	}

	if s.ports.Document != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_documents",
			Description: "List ingested documents with their chunk counts",
		}, s.handleListDocuments)
	}
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	req := domain.QueryRequest{
		Query:          input.Query,
		TopK:           input.TopK,
		ScoreThreshold: input.ScoreThreshold,
		PromptName:     input.Prompt,
	}
	if input.DocumentID != "" {
		req.DocumentID = &input.DocumentID
	}

	result, err := s.ports.Query.Answer(ctx, req)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Answer:           result.Answer,
		Citations:        make([]CitationOutput, len(result.Citations)),
		GenerationFailed: result.GenerationFailed,
		GenerationError:  result.GenerationError,
		TotalTokens:      result.TotalTokens,
		CostUSD:          result.CostUSD,
	}
	for i, c := range result.Citations {
		output.Citations[i] = CitationOutput{
			Label:      c.Label,
			DocumentID: c.DocumentID,
			ChunkID:    c.ChunkID,
			Ordinal:    c.Ordinal,
		}
		if i < len(result.Chunks) {
			output.Citations[i].Score = result.Chunks[i].Score
			output.Citations[i].Text = result.Chunks[i].Text
		}
	}

	return nil, output, nil
}

// handleIngestFile handles the ingest_file tool invocation.
func (s *Server) handleIngestFile(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestFileInput,
) (*mcp.CallToolResult, domain.IngestResult, error) {
	if !filepath.IsAbs(input.Path) {
		return nil, domain.IngestResult{}, domain.NewValidationError("path", "must be absolute")
	}

	info, err := os.Stat(input.Path)
	if err != nil {
		return nil, domain.IngestResult{}, fmt.Errorf("reading %s: %w", input.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, domain.IngestResult{}, domain.NewValidationError("path", "must be a regular file")
	}
	if info.Size() > MaxIngestFileSize {
		return nil, domain.IngestResult{}, domain.NewValidationError("path", fmt.Sprintf("file exceeds %d bytes", MaxIngestFileSize))
	}

	content, err := os.ReadFile(input.Path)
	if err != nil {
		return nil, domain.IngestResult{}, fmt.Errorf("reading %s: %w", input.Path, err)
	}

	result, err := s.ports.Ingest.Ingest(ctx, domain.IngestRequest{
		Content:     content,
		Filename:    filepath.Base(input.Path),
		ContentType: input.ContentType,
	})
	if err != nil {
		return nil, domain.IngestResult{}, err
	}
	return nil, *result, nil
}

// handleListDocuments handles the list_documents tool invocation.
func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ listDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.ports.Document.List(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	output := ListDocumentsOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		output.Documents[i] = toDocumentOutput(docs[i])
	}
	return nil, output, nil
}

func toDocumentOutput(d domain.DocumentSummary) DocumentOutput {
	return DocumentOutput{
		ID:          d.ID,
		Filename:    d.Filename,
		ContentType: d.ContentType,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
