package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite/migrations"
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

const metaDimensions = "dimensions"

// Store is a SQLite-backed implementation of the storage ports.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
}

// NewStore opens or creates the database in dataDir for vectors of the
// given length. If dataDir is empty, defaults to ~/.sercha-rag/data.
// Reopening a database created with different dimensions fails with
// *domain.DimensionMismatchError.
func NewStore(dataDir string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, domain.NewValidationError("dimensions", "must be positive")
	}

	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha-rag", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "rag.db")

	// WAL for concurrent readers; foreign keys are per connection so they go in the DSN
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:         db,
		path:       dbPath,
		dimensions: dimensions,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.checkDimensions(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Dimensions returns the vector length the store accepts.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// checkDimensions records the vector length on first open and rejects
// a different length afterwards.
func (s *Store) checkDimensions() error {
	var stored string
	err := s.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", metaDimensions).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec("INSERT INTO store_meta (key, value) VALUES (?, ?)", metaDimensions, strconv.Itoa(s.dimensions))
		if err != nil {
			return fmt.Errorf("recording dimensions: %w", err)
		}
		return nil
	case err != nil:
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

// ==================== Vector Store ====================

// FindDocumentByHash returns the document with the given content hash.
func (s *Store) FindDocumentByHash(ctx context.Context, fileHash string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content_type, file_hash, created_at
		FROM documents WHERE file_hash = ?
	`, fileHash)
	return scanDocument(row)
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
		VALUES (?, ?, ?, ?, ?)
	`, doc.ID, doc.Filename, doc.ContentType, doc.FileHash, doc.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			tx.Rollback() //nolint:errcheck // release the write lock before reading the winner
			return s.duplicateOf(wctx, doc.FileHash, err)
		}
		return fmt.Errorf("inserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(wctx, `
		INSERT INTO chunks (id, document_id, ordinal, text, token_estimate, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(wctx, c.ID, doc.ID, c.Ordinal, c.Text, c.TokenEstimate,
			float32SliceToBytes(c.Embedding)); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document: %w", err)
	}
	return nil
}

func (s *Store) duplicateOf(ctx context.Context, fileHash string, cause error) error {
	existing, err := s.FindDocumentByHash(ctx, fileHash)
	if err != nil {
		return fmt.Errorf("inserting document: %w", cause)
	}
	return &domain.DuplicateDocumentError{DocumentID: existing.ID, FileHash: fileHash}
}

// SimilaritySearch ranks stored chunks by exact cosine distance.
func (s *Store) SimilaritySearch(ctx context.Context, q driven.SimilarityQuery) ([]domain.RetrievedChunk, error) {
	query := "SELECT id, document_id, text, ordinal, embedding FROM chunks"
	var args []any
	if q.DocumentID != nil {
		query += " WHERE document_id = ?"
		args = append(args, *q.DocumentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var candidates []vecsearch.Candidate
	for rows.Next() {
		var c vecsearch.Candidate
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.Text, &c.Ordinal, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = bytesToFloat32Slice(blob)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return vecsearch.Rank(candidates, q), nil
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content_type, file_hash, created_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// GetChunks returns a document's chunks ordered by ordinal, without embeddings.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, text, ordinal, token_estimate
		FROM chunks WHERE document_id = ?
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
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
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

// ==================== Query Log Store ====================

// AppendQueryLog stores a query log entry.
func (s *Store) AppendQueryLog(ctx context.Context, entry *domain.QueryLog) error {
	ids := entry.RetrievedChunkIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshalling chunk ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_logs (id, query_text, retrieved_chunk_ids, prompt_tokens,
			completion_tokens, total_tokens, cost_usd, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.QueryText, string(idsJSON), entry.PromptTokens, entry.CompletionTokens,
		entry.TotalTokens, entry.CostUSD, entry.LatencyMS, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting query log: %w", err)
	}
	return nil
}

// ListQueryLogs returns the most recent entries, newest first.
func (s *Store) ListQueryLogs(ctx context.Context, limit int) ([]domain.QueryLog, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_text, retrieved_chunk_ids, prompt_tokens, completion_tokens,
			total_tokens, cost_usd, latency_ms, created_at
		FROM query_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying query logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.QueryLog{}
	for rows.Next() {
		var l domain.QueryLog
		var idsJSON string
		var cost sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.QueryText, &idsJSON, &l.PromptTokens, &l.CompletionTokens,
			&l.TotalTokens, &cost, &l.LatencyMS, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning query log: %w", err)
		}
		if err := json.Unmarshal([]byte(idsJSON), &l.RetrievedChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshalling chunk ids: %w", err)
		}
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
		SELECT COUNT(*), AVG(latency_ms), COALESCE(SUM(total_tokens), 0), AVG(total_tokens), SUM(cost_usd)
		FROM query_logs
	`).Scan(&m.TotalQueries, &avgLatency, &m.TotalTokens, &avgTokens, &totalCost)
	if err != nil {
		return nil, fmt.Errorf("aggregating query logs: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)
	`).Scan(&m.TotalDocuments, &m.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("counting corpus: %w", err)
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

// ==================== Prompt Registry ====================

// CreatePrompt appends a new inactive version of the named prompt.
// The version is assigned in the insert statement itself.
func (s *Store) CreatePrompt(ctx context.Context, name, content, author string) (*domain.SystemPrompt, error) {
	p := domain.SystemPrompt{
		ID:        uuid.New().String(),
		Name:      name,
		Content:   content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO system_prompts (id, name, version, content, author, is_active, created_at)
		SELECT ?, ?, COALESCE(MAX(version), 0) + 1, ?, ?, 0, ?
		FROM system_prompts WHERE name = ?
		RETURNING version
	`, p.ID, name, content, author, p.CreatedAt, name).Scan(&p.Version)
	if err != nil {
		return nil, fmt.Errorf("inserting prompt: %w", err)
	}
	return &p, nil
}

// ActivatePrompt makes the given version the single active one for its name.
func (s *Store) ActivatePrompt(ctx context.Context, id string) (*domain.SystemPrompt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Deactivate first: the partial unique index allows one active row per name
	if _, err := tx.ExecContext(ctx, `
		UPDATE system_prompts SET is_active = 0
		WHERE is_active = 1 AND name = (SELECT name FROM system_prompts WHERE id = ?)
	`, id); err != nil {
		return nil, fmt.Errorf("deactivating prompts: %w", err)
	}

	res, err := tx.ExecContext(ctx, "UPDATE system_prompts SET is_active = 1 WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("activating prompt: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("activating prompt: %w", err)
	} else if n == 0 {
		return nil, domain.ErrNotFound
	}

	p, err := scanPrompt(tx.QueryRowContext(ctx, promptSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing activation: %w", err)
	}
	return p, nil
}

// ActivePrompt returns the active version for a name.
func (s *Store) ActivePrompt(ctx context.Context, name string) (*domain.SystemPrompt, error) {
	return scanPrompt(s.db.QueryRowContext(ctx, promptSelect+" WHERE name = ? AND is_active = 1", name))
}

// ListPrompts returns versions, newest first. Empty name lists all prompts.
func (s *Store) ListPrompts(ctx context.Context, name string) ([]domain.SystemPrompt, error) {
	query := promptSelect
	var args []any
	if name != "" {
		query += " WHERE name = ?"
		args = append(args, name)
	}
	query += " ORDER BY name, version DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// ==================== Helper Functions ====================

const promptSelect = `SELECT id, name, version, content, author, is_active, created_at FROM system_prompts`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
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

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.FileHash, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
