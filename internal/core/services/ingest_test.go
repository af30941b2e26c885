package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/chunker"
)

const testDims = 8

type ingestFixture struct {
	svc       *IngestService
	store     *memory.Store
	embedder  *mockEmbeddingService
	extractor *mockExtractor
	ocr       *mockOCREngine
}

func newIngestFixture(opts ...chunker.Option) *ingestFixture {
	f := &ingestFixture{
		store:     memory.NewStore(testDims),
		embedder:  newMockEmbedding(testDims),
		extractor: &mockExtractor{},
		ocr:       &mockOCREngine{available: true},
	}
	registry := &mockExtractorRegistry{
		extractor: f.extractor,
		types:     []string{"text/plain", "application/pdf", "image/png"},
	}
	f.svc = NewIngestService(f.store, registry, chunker.New(opts...), f.embedder)
	f.svc.SetRetryPolicy(fastRetry())
	f.svc.SetOCREngine(f.ocr)
	return f
}

func textRequest(body string) domain.IngestRequest {
	return domain.IngestRequest{Content: []byte(body), Filename: "policy.txt", ContentType: "text/plain"}
}

func TestIngestService_Ingest(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()
	body := "The refund window is 30 days. Contact support to start a return."

	res, err := f.svc.Ingest(ctx, textRequest(body))
	require.NoError(t, err)

	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, 1, res.ChunksIngested)
	assert.False(t, res.AlreadyExisted)
	assert.False(t, res.OCRUsed)

	sum := sha256.Sum256([]byte(body))
	doc, err := f.store.FindDocumentByHash(ctx, hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	assert.Equal(t, res.DocumentID, doc.ID)
	assert.Equal(t, "policy.txt", doc.Filename)
	assert.Equal(t, "text/plain", doc.ContentType)
	assert.False(t, doc.CreatedAt.IsZero())

	chunks, err := f.store.GetChunks(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, body, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Ordinal)
}

func TestIngestService_Ingest_NormalisesContentType(t *testing.T) {
	f := newIngestFixture()
	req := textRequest("Some plain text content for the store.")
	req.ContentType = "TEXT/PLAIN; charset=utf-8"

	res, err := f.svc.Ingest(context.Background(), req)
	require.NoError(t, err)

	doc, err := f.store.GetDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", doc.ContentType)
}

func TestIngestService_Ingest_DuplicateSkipsWork(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()
	req := textRequest("Identical bytes produce one document.")

	first, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Ingest(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.False(t, first.AlreadyExisted)
	assert.True(t, second.AlreadyExisted)
	assert.Zero(t, second.ChunksIngested)
	assert.False(t, second.OCRUsed)

	assert.Equal(t, int32(1), f.extractor.calls.Load())
	assert.Equal(t, int32(1), f.embedder.batchCalls.Load())

	docs, err := f.store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestService_Ingest_ConcurrentDuplicates(t *testing.T) {
	f := newIngestFixture()
	ctx := context.Background()
	req := textRequest("Concurrent uploads of the same file must converge on one row.")

	const workers = 8
	results := make([]*domain.IngestResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Ingest(ctx, req)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].DocumentID, results[i].DocumentID)
		if !results[i].AlreadyExisted {
			created++
		}
	}
	assert.Equal(t, 1, created)

	docs, err := f.store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestIngestService_Ingest_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  domain.IngestRequest
	}{
		{"empty content", domain.IngestRequest{Filename: "a.txt", ContentType: "text/plain"}},
		{"empty filename", domain.IngestRequest{Content: []byte("x"), Filename: "  ", ContentType: "text/plain"}},
		{"unsupported type", domain.IngestRequest{Content: []byte("x"), Filename: "a.bin", ContentType: "application/zip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture()

			_, err := f.svc.Ingest(context.Background(), tt.req)

			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, f.extractor.calls.Load())
			assert.Zero(t, f.embedder.batchCalls.Load())
		})
	}
}

func TestIngestService_Ingest_DimensionMismatch(t *testing.T) {
	f := newIngestFixture()
	f.embedder.dims = 4

	_, err := f.svc.Ingest(context.Background(), textRequest("Vectors of the wrong size are rejected."))

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.extractor.calls.Load())

	docs, _ := f.store.ListDocuments(context.Background())
	assert.Empty(t, docs)
}

func TestIngestService_Ingest_EmbeddingFailureAbortsIngestion(t *testing.T) {
	f := newIngestFixture()
	f.embedder.embedErr = errors.New("provider down")

	_, err := f.svc.Ingest(context.Background(), textRequest("This document never reaches the store."))

	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	var exhausted *domain.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, int32(3), f.embedder.batchCalls.Load())

	docs, _ := f.store.ListDocuments(context.Background())
	assert.Empty(t, docs)
}

func TestIngestService_Ingest_EmbeddingTransientFailureRetried(t *testing.T) {
	f := newIngestFixture()
	f.embedder.embedErr = errors.New("429")
	f.embedder.failFirst = 1

	res, err := f.svc.Ingest(context.Background(), textRequest("A transient provider error is retried."))

	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksIngested)
	assert.Equal(t, int32(2), f.embedder.batchCalls.Load())
}

func TestIngestService_Ingest_Batches(t *testing.T) {
	// Five-word sentences estimate to 7 tokens, so a budget of 10 gives one sentence per chunk.
	f := newIngestFixture(chunker.WithTokenBudget(10), chunker.WithOverlapTokens(0))
	f.svc.SetBatchSize(2)

	sentences := []string{
		"One two three four five.",
		"Six seven eight nine ten.",
		"Eleven twelve thirteen fourteen fifteen.",
		"Sixteen seventeen eighteen nineteen twenty.",
		"Alpha beta gamma delta epsilon.",
	}

	res, err := f.svc.Ingest(context.Background(), textRequest(strings.Join(sentences, " ")))
	require.NoError(t, err)

	assert.Equal(t, 5, res.ChunksIngested)
	assert.Equal(t, int32(3), f.embedder.batchCalls.Load())

	chunks, err := f.store.GetChunks(context.Background(), res.DocumentID)
	require.NoError(t, err)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, sentences[i], c.Text)
	}
}

func TestIngestService_Ingest_OCRFallback(t *testing.T) {
	f := newIngestFixture()
	f.extractor.text = "   "
	f.ocr.text = "Scanned invoice total is 120 euros payable within 14 days."

	req := domain.IngestRequest{Content: []byte("%PDF-1.4 scanned"), Filename: "scan.pdf", ContentType: "application/pdf"}
	res, err := f.svc.Ingest(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, res.OCRUsed)
	assert.Equal(t, int32(1), f.ocr.calls.Load())

	chunks, err := f.store.GetChunks(context.Background(), res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, f.ocr.text, chunks[0].Text)
}

func TestIngestService_Ingest_OCRAfterPrimaryError(t *testing.T) {
	f := newIngestFixture()
	f.extractor.err = errors.New("pdftotext failed")
	f.ocr.text = "Recognised text from the page image."

	req := domain.IngestRequest{Content: []byte{0x89, 'P', 'N', 'G'}, Filename: "page.png", ContentType: "image/png"}
	res, err := f.svc.Ingest(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, res.OCRUsed)
}

func TestIngestService_Ingest_SufficientTextSkipsOCR(t *testing.T) {
	f := newIngestFixture()
	f.extractor.text = "This PDF has a perfectly good text layer."

	req := domain.IngestRequest{Content: []byte("%PDF-1.4"), Filename: "a.pdf", ContentType: "application/pdf"}
	res, err := f.svc.Ingest(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, res.OCRUsed)
	assert.Zero(t, f.ocr.calls.Load())
}

func TestIngestService_Ingest_ShortTextNotOCREligible(t *testing.T) {
	f := newIngestFixture()

	res, err := f.svc.Ingest(context.Background(), textRequest("Hi."))

	require.NoError(t, err)
	assert.False(t, res.OCRUsed)
	assert.Equal(t, 1, res.ChunksIngested)
	assert.Zero(t, f.ocr.calls.Load())
}

func TestIngestService_Ingest_ShortPrimaryTextKept(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *ingestFixture)
	}{
		{"ocr unavailable", func(f *ingestFixture) { f.ocr.available = false }},
		{"ocr returns less", func(f *ingestFixture) { f.ocr.text = "Page" }},
		{"ocr errors", func(f *ingestFixture) { f.ocr.err = errors.New("tesseract crashed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture()
			f.extractor.text = "Page 1 of 1."
			tt.setup(f)

			req := domain.IngestRequest{Content: []byte("%PDF-1.4"), Filename: "cover.pdf", ContentType: "application/pdf"}
			res, err := f.svc.Ingest(context.Background(), req)

			require.NoError(t, err)
			assert.False(t, res.OCRUsed)
			chunks, err := f.store.GetChunks(context.Background(), res.DocumentID)
			require.NoError(t, err)
			require.Len(t, chunks, 1)
			assert.Equal(t, "Page 1 of 1.", chunks[0].Text)
		})
	}
}

func TestIngestService_Ingest_ExtractionFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *ingestFixture)
	}{
		{"ocr unavailable", func(f *ingestFixture) { f.ocr.available = false }},
		{"ocr returns nothing", func(f *ingestFixture) { f.ocr.text = "" }},
		{"ocr errors", func(f *ingestFixture) { f.ocr.err = errors.New("tesseract crashed") }},
		{"no ocr engine", func(f *ingestFixture) { f.svc.SetOCREngine(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture()
			f.extractor.text = " \n "
			tt.setup(f)

			req := domain.IngestRequest{Content: []byte("%PDF-1.4"), Filename: "blank.pdf", ContentType: "application/pdf"}
			_, err := f.svc.Ingest(context.Background(), req)

			assert.ErrorIs(t, err, domain.ErrExtraction)
			assert.Zero(t, f.embedder.batchCalls.Load())
			docs, _ := f.store.ListDocuments(context.Background())
			assert.Empty(t, docs)
		})
	}
}

func TestIngestService_Ingest_PrimaryErrorNotEligible(t *testing.T) {
	f := newIngestFixture()
	f.extractor.err = errors.New("decode failed")

	_, err := f.svc.Ingest(context.Background(), textRequest("anything"))

	var extractionErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "policy.txt", extractionErr.Filename)
	assert.Zero(t, f.ocr.calls.Load())
}

func TestIngestService_Ingest_CancelledContext(t *testing.T) {
	f := newIngestFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Ingest(ctx, textRequest("Cancelled before embedding."))

	assert.ErrorIs(t, err, context.Canceled)
	docs, _ := f.store.ListDocuments(context.Background())
	assert.Empty(t, docs)
}
