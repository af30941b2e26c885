package services

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure TelemetryService implements the interface.
var _ driving.TelemetryService = (*TelemetryService)(nil)

// DefaultQueryLogLimit is the number of query logs returned when no limit is given.
const DefaultQueryLogLimit = 100

// TelemetryService reads query logs and aggregate metrics.
type TelemetryService struct {
	logs driven.QueryLogStore
}

// NewTelemetryService creates a new telemetry service.
func NewTelemetryService(logs driven.QueryLogStore) *TelemetryService {
	return &TelemetryService{logs: logs}
}

// QueryLogs returns recent query logs, newest first.
func (s *TelemetryService) QueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error) {
	if limit <= 0 {
		limit = DefaultQueryLogLimit
	}
	logs, err := s.logs.ListQueryLogs(ctx, limit)
	if err != nil {
		return nil, storageError("list query logs", err)
	}
	return logs, nil
}

// Metrics returns aggregate usage figures.
func (s *TelemetryService) Metrics(ctx context.Context) (*domain.ServiceMetrics, error) {
	m, err := s.logs.Metrics(ctx)
	if err != nil {
		return nil, storageError("aggregate metrics", err)
	}
	return m, nil
}
