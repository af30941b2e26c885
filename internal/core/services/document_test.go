package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestDocumentService_List(t *testing.T) {
	store := memory.NewStore(2)
	seedDocument(t, store, "doc-1", []string{"a", "b"}, [][]float32{unitAt(0.1), unitAt(0.2)})
	svc := NewDocumentService(store)

	docs, err := svc.List(context.Background())

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, 2, docs[0].ChunkCount)
}

func TestDocumentService_Get(t *testing.T) {
	store := memory.NewStore(2)
	seedDocument(t, store, "doc-1", []string{"a"}, [][]float32{unitAt(0.1)})
	svc := NewDocumentService(store)

	doc, err := svc.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1.txt", doc.Filename)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDocumentService_Chunks(t *testing.T) {
	store := memory.NewStore(2)
	seedDocument(t, store, "doc-1", []string{"first", "second", "third"},
		[][]float32{unitAt(0.1), unitAt(0.2), unitAt(0.3)})
	svc := NewDocumentService(store)

	chunks, err := svc.Chunks(context.Background(), "doc-1")
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
	assert.Equal(t, "first", chunks[0].Text)

	_, err = svc.Chunks(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_Delete(t *testing.T) {
	store := memory.NewStore(2)
	seedDocument(t, store, "doc-1", []string{"a"}, [][]float32{unitAt(0.1)})
	svc := NewDocumentService(store)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "doc-1"))

	_, err := svc.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.FindDocumentByHash(ctx, "hash-doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "doc-1"), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, " "), domain.ErrValidation)
}

func TestDocumentService_DeleteAllowsReingest(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()
	req := textRequest("Deleted content can be uploaded again as a new document.")

	first, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	require.NoError(t, NewDocumentService(f.store).Delete(ctx, first.DocumentID))

	second, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.AlreadyExisted)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)
}
