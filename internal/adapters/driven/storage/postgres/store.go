package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/vecsearch"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.VectorStore    = (*Store)(nil)
	_ driven.QueryLogStore  = (*Store)(nil)
	_ driven.PromptRegistry = (*Store)(nil)
)

const (
	metaDimensions = "dimensions"

	// uniqueViolation is the SQLSTATE for unique_violation.
	uniqueViolation = "23505"
)

// Store is a PostgreSQL-backed implementation of the storage ports.
type Store struct {
	db         *sql.DB
	dimensions int
}

// NewStore connects to dsn, applies the schema and checks that the
// database was created for vectors of the given length.
func NewStore(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, domain.NewValidationError("dimensions", "must be positive")
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, domain.NewValidationError("database_url", "must not be empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db, dimensions: dimensions}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dimensions returns the vector length the store accepts.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema(s.dimensions) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, metaDimensions, strconv.Itoa(s.dimensions))
	if err != nil {
		return fmt.Errorf("recording dimensions: %w", err)
	}

	var stored string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = $1`, metaDimensions).Scan(&stored); err != nil {
		return fmt.Errorf("reading dimensions: %w", err)
	}
	n, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("parsing stored dimensions %q: %w", stored, err)
	}
	if n != s.dimensions {
		return &domain.DimensionMismatchError{Expected: n, Got: s.dimensions}
	}
	return nil
}

// FindDocumentByHash returns the document with the given content hash.
func (s *Store) FindDocumentByHash(ctx context.Context, fileHash string) (*domain.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, documentSelect+" WHERE file_hash = $1", fileHash))
}

// CreateDocumentWithChunks stores a document and its chunks in one transaction.
// A concurrent insert of the same hash fails with *domain.DuplicateDocumentError
// naming the document that won. A context already done on entry aborts
// before anything is written; after that the write runs to commit.
func (s *Store) CreateDocumentWithChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != s.dimensions {
			return &domain.DimensionMismatchError{Expected: s.dimensions, Got: len(c.Embedding)}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	// A transaction is bound to the context it began with, so cancelling
	// the caller must not roll back a write that is already under way.
	wctx := context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(wctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(wctx, `
		INSERT INTO documents (id, filename, content_type, file_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, doc.ID, doc.Filename, doc.ContentType, doc.FileHash, doc.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			tx.Rollback() //nolint:errcheck // the transaction is aborted
			existing, findErr := s.FindDocumentByHash(wctx, doc.FileHash)
			if findErr != nil {
				return fmt.Errorf("inserting document: %w", err)
			}
			return &domain.DuplicateDocumentError{DocumentID: existing.ID, FileHash: doc.FileHash}
		}
		return fmt.Errorf("inserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(wctx, `
		INSERT INTO chunks (id, document_id, ordinal, text, token_estimate, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(wctx, c.ID, doc.ID, c.Ordinal, c.Text, c.TokenEstimate,
			pgvector.NewVector(c.Embedding)); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

// SimilaritySearch ranks chunks with the pgvector cosine distance operator.
func (s *Store) SimilaritySearch(ctx context.Context, q driven.SimilarityQuery) ([]domain.RetrievedChunk, error) {
	query, args := similarityQuery(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	results := []domain.RetrievedChunk{}
	for rows.Next() {
		var r domain.RetrievedChunk
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Text, &r.Ordinal, &r.Distance); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.Score = 1 - r.Distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

// similarityQuery builds the search statement. Filters apply before the
// ordering so LIMIT counts only qualifying chunks.
func similarityQuery(q driven.SimilarityQuery) (string, []any) {
	args := []any{pgvector.NewVector(q.Vector)}
	var where []string

	if q.DocumentID != nil {
		args = append(args, *q.DocumentID)
		where = append(where, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if q.MaxDistance != nil {
		args = append(args, *q.MaxDistance+vecsearch.DistanceTolerance)
		where = append(where, fmt.Sprintf("(embedding <=> $1) <= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT id, document_id, text, ordinal, embedding <=> $1 AS distance FROM chunks")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY distance, ordinal, id")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// ListDocuments returns every document with its chunk count, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]domain.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.filename, d.content_type, d.file_hash, d.created_at, COUNT(c.id)
		FROM documents d
		LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.created_at DESC, d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.DocumentSummary{}
	for rows.Next() {
		var d domain.DocumentSummary
		if err := rows.Scan(&d.ID, &d.Filename, &d.ContentType, &d.FileHash, &d.CreatedAt, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, documentSelect+" WHERE id = $1", id))
}

// GetChunks returns a document's chunks ordered by ordinal, without embeddings.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, text, ordinal, token_estimate
		FROM chunks WHERE document_id = $1
		ORDER BY ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Text, &c.Ordinal, &c.TokenEstimate); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteDocument removes a document. Chunks are removed by cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendQueryLog stores a query log entry.
func (s *Store) AppendQueryLog(ctx context.Context, entry *domain.QueryLog) error {
	ids := entry.RetrievedChunkIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_logs (id, query_text, retrieved_chunk_ids, prompt_tokens,
			completion_tokens, total_tokens, cost_usd, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.QueryText, pq.Array(ids), entry.PromptTokens, entry.CompletionTokens,
		entry.TotalTokens, entry.CostUSD, entry.LatencyMS, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting query log: %w", err)
	}
	return nil
}

// ListQueryLogs returns the most recent entries, newest first.
func (s *Store) ListQueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error) {
	var limitArg any // NULL means no limit
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_text, retrieved_chunk_ids, prompt_tokens, completion_tokens,
			total_tokens, cost_usd, latency_ms, created_at
		FROM query_logs
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
	`, limitArg)
	if err != nil {
		return nil, fmt.Errorf("querying query logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.QueryLog{}
	for rows.Next() {
		var l domain.QueryLog
		var ids pq.StringArray
		var cost sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.QueryText, &ids, &l.PromptTokens, &l.CompletionTokens,
			&l.TotalTokens, &cost, &l.LatencyMS, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning query log: %w", err)
		}
		l.RetrievedChunkIDs = []string(ids)
		if cost.Valid {
			l.CostUSD = &cost.Float64
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query logs: %w", err)
	}
	return logs, nil
}

// Metrics aggregates query logs and corpus size.
func (s *Store) Metrics(ctx context.Context) (*domain.ServiceMetrics, error) {
	var m domain.ServiceMetrics
	var avgLatency, avgTokens, totalCost sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(latency_ms)::float8, COALESCE(SUM(total_tokens), 0),
			AVG(total_tokens)::float8, SUM(cost_usd),
			(SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)
		FROM query_logs
	`).Scan(&m.TotalQueries, &avgLatency, &m.TotalTokens, &avgTokens, &totalCost,
		&m.TotalDocuments, &m.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("aggregating metrics: %w", err)
	}

	if avgLatency.Valid {
		m.AvgLatencyMS = &avgLatency.Float64
	}
	if avgTokens.Valid {
		m.AvgTokensPerQuery = &avgTokens.Float64
	}
	if totalCost.Valid {
		m.TotalCostUSD = &totalCost.Float64
	}
	return &m, nil
}

// CreatePrompt appends a new inactive version of the named prompt.
func (s *Store) CreatePrompt(ctx context.Context, name, content, author string) (*domain.SystemPrompt, error) {
	p := domain.SystemPrompt{
		ID:        uuid.New().String(),
		Name:      name,
		Content:   content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}

	err := s.withPromptLock(ctx, name, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO system_prompts (id, name, version, content, author, is_active, created_at)
			SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, FALSE, $5
			FROM system_prompts WHERE name = $2
			RETURNING version
		`, p.ID, name, content, author, p.CreatedAt).Scan(&p.Version)
	})
	if err != nil {
		return nil, fmt.Errorf("inserting prompt: %w", err)
	}
	return &p, nil
}

// ActivatePrompt makes the given version the single active one for its name.
func (s *Store) ActivatePrompt(ctx context.Context, id string) (*domain.SystemPrompt, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM system_prompts WHERE id = $1", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up prompt: %w", err)
	}

	var p *domain.SystemPrompt
	err = s.withPromptLock(ctx, name, func(tx *sql.Tx) error {
		// Deactivate first: the partial unique index allows one active row per name
		if _, err := tx.ExecContext(ctx,
			"UPDATE system_prompts SET is_active = FALSE WHERE name = $1 AND is_active", name); err != nil {
			return fmt.Errorf("deactivating prompts: %w", err)
		}
		var err error
		p, err = scanPrompt(tx.QueryRowContext(ctx,
			"UPDATE system_prompts SET is_active = TRUE WHERE id = $1 RETURNING "+promptColumns, id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ActivePrompt returns the active version for a name.
func (s *Store) ActivePrompt(ctx context.Context, name string) (*domain.SystemPrompt, error) {
	return scanPrompt(s.db.QueryRowContext(ctx,
		"SELECT "+promptColumns+" FROM system_prompts WHERE name = $1 AND is_active", name))
}

// ListPrompts returns versions, newest first. Empty name lists all prompts.
func (s *Store) ListPrompts(ctx context.Context, name string) ([]domain.SystemPrompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+promptColumns+` FROM system_prompts
		WHERE $1 = '' OR name = $1
		ORDER BY name, version DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("querying prompts: %w", err)
	}
	defer rows.Close()

	var prompts []domain.SystemPrompt //nolint:prealloc // size unknown from query
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prompts: %w", err)
	}
	return prompts, nil
}

// withPromptLock runs fn in a transaction holding an advisory lock on the
// prompt name, serialising version numbering and activation per name.
func (s *Store) withPromptLock(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "prompt:"+name); err != nil {
		return fmt.Errorf("locking prompt %s: %w", name, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const documentSelect = `SELECT id, filename, content_type, file_hash, created_at FROM documents`

const promptColumns = `id, name, version, content, author, is_active, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.FileHash, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

func scanPrompt(row rowScanner) (*domain.SystemPrompt, error) {
	var p domain.SystemPrompt
	if err := row.Scan(&p.ID, &p.Name, &p.Version, &p.Content, &p.Author, &p.IsActive, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning prompt: %w", err)
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
