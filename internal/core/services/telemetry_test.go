package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestTelemetryService_QueryLogs(t *testing.T) {
	store := memory.NewStore(2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendQueryLog(ctx, &domain.QueryLog{ID: fmt.Sprintf("log-%d", i), QueryText: "q"}))
	}
	svc := NewTelemetryService(store)

	logs, err := svc.QueryLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "log-2", logs[0].ID)
	assert.Equal(t, "log-1", logs[1].ID)

	all, err := svc.QueryLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTelemetryService_Metrics(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Answer(ctx, domain.QueryRequest{Query: refundQuestion})
		require.NoError(t, err)
	}

	m, err := NewTelemetryService(f.store).Metrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, m.TotalQueries)
	assert.Equal(t, 1, m.TotalDocuments)
	assert.Equal(t, 3, m.TotalChunks)
	assert.Equal(t, 2400, m.TotalTokens)
	require.NotNil(t, m.AvgTokensPerQuery)
	assert.InDelta(t, 1200, *m.AvgTokensPerQuery, 1e-9)
	require.NotNil(t, m.TotalCostUSD)
	assert.InDelta(t, 0.00054, *m.TotalCostUSD, 1e-12)
	assert.NotNil(t, m.AvgLatencyMS)
}

func TestTelemetryService_Metrics_Empty(t *testing.T) {
	m, err := NewTelemetryService(memory.NewStore(2)).Metrics(context.Background())
	require.NoError(t, err)

	assert.Zero(t, m.TotalQueries)
	assert.Nil(t, m.AvgLatencyMS)
	assert.Nil(t, m.TotalCostUSD)
}

func TestTelemetryService_StorageFailure(t *testing.T) {
	svc := NewTelemetryService(failingQueryLogStore{})

	_, err := svc.QueryLogs(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = svc.Metrics(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
