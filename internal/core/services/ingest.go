package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// DefaultEmbeddingBatchSize is the number of chunks embedded per provider call.
const DefaultEmbeddingBatchSize = 64

// DefaultMinTextChars is the non-whitespace character count below which
// primary extraction output is treated as empty.
const DefaultMinTextChars = 20

// IngestService deduplicates, extracts, chunks, embeds and stores documents.
type IngestService struct {
	store        driven.VectorStore
	extractors   driven.ExtractorRegistry
	chunker      driven.Chunker
	embedder     driven.EmbeddingService
	ocr          driven.OCREngine
	retry        RetryPolicy
	batchSize    int
	minTextChars int
	now          func() time.Time
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	store driven.VectorStore,
	extractors driven.ExtractorRegistry,
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
) *IngestService {
	return &IngestService{
		store:        store,
		extractors:   extractors,
		chunker:      chunker,
		embedder:     embedder,
		retry:        DefaultRetryPolicy(),
		batchSize:    DefaultEmbeddingBatchSize,
		minTextChars: DefaultMinTextChars,
		now:          time.Now,
	}
}

// SetOCREngine enables OCR fallback. A nil engine disables it.
func (s *IngestService) SetOCREngine(engine driven.OCREngine) {
	s.ocr = engine
}

// SetRetryPolicy sets the policy used for embedding calls.
func (s *IngestService) SetRetryPolicy(p RetryPolicy) {
	s.retry = p
}

// SetBatchSize sets the number of chunks per embedding call.
func (s *IngestService) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// SetMinTextChars sets the OCR trigger threshold.
func (s *IngestService) SetMinTextChars(n int) {
	if n > 0 {
		s.minTextChars = n
	}
}

// Ingest stores the document unless identical content already exists.
func (s *IngestService) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	logger.Section("Ingest")

	contentType, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	logger.Debug("File: %s, content type: %s, size: %d bytes", req.Filename, contentType, len(req.Content))

	sum := sha256.Sum256(req.Content)
	fileHash := hex.EncodeToString(sum[:])

	existing, err := s.store.FindDocumentByHash(ctx, fileHash)
	switch {
	case err == nil:
		logger.Event("document_already_exists", "document_id", existing.ID, "file_hash", fileHash)
		return &domain.IngestResult{DocumentID: existing.ID, AlreadyExisted: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, storageError("find document by hash", err)
	}

	text, ocrUsed, err := s.extract(ctx, req.Filename, contentType, req.Content)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, &domain.ExtractionError{Filename: req.Filename, Reason: "no chunks produced"}
	}
	logger.Debug("Chunked into %d chunks", len(chunks))

	docID := uuid.New().String()
	for i := range chunks {
		chunks[i].DocumentID = docID
	}

	if err := s.embedChunks(ctx, chunks); err != nil {
		return nil, err
	}

	doc := &domain.Document{
		ID:          docID,
		Filename:    req.Filename,
		ContentType: contentType,
		FileHash:    fileHash,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.store.CreateDocumentWithChunks(ctx, doc, chunks); err != nil {
		var dup *domain.DuplicateDocumentError
		if errors.As(err, &dup) {
			logger.Event("document_already_exists", "document_id", dup.DocumentID, "file_hash", fileHash, "race", true)
			return &domain.IngestResult{DocumentID: dup.DocumentID, AlreadyExisted: true}, nil
		}
		return nil, storageError("store document", err)
	}

	logger.Event("document_ingested",
		"document_id", docID,
		"filename", req.Filename,
		"chunks", len(chunks),
		"ocr_used", ocrUsed,
	)

	return &domain.IngestResult{
		DocumentID:     docID,
		ChunksIngested: len(chunks),
		OCRUsed:        ocrUsed,
	}, nil
}

// validate rejects requests before any side effect and returns the
// normalised content type.
func (s *IngestService) validate(req *domain.IngestRequest) (string, error) {
	if len(req.Content) == 0 {
		return "", domain.NewValidationError("content", "must not be empty")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return "", domain.NewValidationError("filename", "must not be empty")
	}

	contentType := NormaliseContentType(req.ContentType, req.Filename, req.Content)
	if !s.extractors.Supports(contentType) {
		return "", domain.NewValidationError("content_type", fmt.Sprintf("unsupported content type %q", contentType))
	}

	if storeDims, embedDims := s.store.Dimensions(), s.embedder.Dimensions(); storeDims != embedDims {
		return "", &domain.DimensionMismatchError{Expected: storeDims, Got: embedDims}
	}

	return contentType, nil
}

// extract runs primary extraction and falls back to OCR when the primary
// output has too little text and the content type is OCR-eligible.
func (s *IngestService) extract(ctx context.Context, filename, contentType string, content []byte) (string, bool, error) {
	extractor, ok := s.extractors.Get(contentType)
	if !ok {
		return "", false, domain.NewValidationError("content_type", fmt.Sprintf("unsupported content type %q", contentType))
	}

	text, primaryErr := extractor.Extract(ctx, content, contentType)
	if primaryErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		logger.Debug("Primary extraction with %s failed: %v", extractor.Name(), primaryErr)
		text = ""
	}

	primaryChars := nonSpaceCount(text)
	if primaryChars >= s.minTextChars {
		return text, false, nil
	}

	if s.ocr != nil && s.ocr.Eligible(contentType) && s.ocr.Available() {
		logger.Debug("Primary text has %d characters, trying OCR", primaryChars)
		ocrText, err := s.ocr.Recognise(ctx, content, contentType)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", false, ctxErr
			}
			logger.Warn("OCR failed for %s: %v", filename, err)
		case nonSpaceCount(ocrText) > primaryChars:
			return ocrText, true, nil
		}
	}

	if primaryChars > 0 {
		return text, false, nil
	}

	reason := "no extractable text"
	if primaryErr != nil {
		reason = "primary extraction failed"
	}
	return "", false, &domain.ExtractionError{Filename: filename, Reason: reason, Err: primaryErr}
}

// embedChunks fills each chunk's Embedding, batching provider calls.
func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	dims := s.store.Dimensions()

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))

		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Text
		}

		var vectors [][]float32
		err := s.retry.Do(ctx, "embed batch", func(ctx context.Context) error {
			var err error
			vectors, err = s.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingProvider, len(vectors), len(texts))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for i, vec := range vectors {
			if len(vec) != dims {
				return &domain.DimensionMismatchError{Expected: dims, Got: len(vec)}
			}
			chunks[start+i].Embedding = vec
		}
		logger.Debug("Embedded chunks %d-%d", start, end-1)
	}

	return nil
}

func nonSpaceCount(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// storageError tags infrastructure failures as ErrStorageUnavailable while
// leaving domain errors such as ErrNotFound untouched.
func storageError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadyExists) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
