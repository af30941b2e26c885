package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// QueryService answers questions from ingested content.
type QueryService interface {
	// Answer retrieves relevant passages and generates a cited answer.
	// LLM failures degrade the result rather than failing the call.
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}

// TelemetryService reports on past queries.
type TelemetryService interface {
	// QueryLogs returns recent query logs, newest first.
	QueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error)

	// Metrics returns aggregate usage figures.
	Metrics(ctx context.Context) (*domain.ServiceMetrics, error)
}
