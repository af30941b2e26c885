package postgres

import "fmt"

// schema returns the DDL for a store holding vectors of the given length.
// Statements are idempotent so the schema is applied on every start.
func schema(dimensions int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS store_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id           TEXT PRIMARY KEY,
			filename     TEXT NOT NULL,
			content_type TEXT NOT NULL,
			file_hash    TEXT NOT NULL UNIQUE,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id             TEXT PRIMARY KEY,
			document_id    TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			ordinal        INTEGER NOT NULL,
			text           TEXT NOT NULL,
			token_estimate INTEGER NOT NULL,
			embedding      vector(%d) NOT NULL,
			UNIQUE (document_id, ordinal)
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS query_logs (
			id                  TEXT PRIMARY KEY,
			query_text          TEXT NOT NULL,
			retrieved_chunk_ids TEXT[] NOT NULL DEFAULT '{}',
			prompt_tokens       INTEGER NOT NULL DEFAULT 0,
			completion_tokens   INTEGER NOT NULL DEFAULT 0,
			total_tokens        INTEGER NOT NULL DEFAULT 0,
			cost_usd            DOUBLE PRECISION,
			latency_ms          BIGINT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL,
			seq                 BIGSERIAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_logs_created_at ON query_logs(created_at)`,
		`CREATE TABLE IF NOT EXISTS system_prompts (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			version    INTEGER NOT NULL,
			content    TEXT NOT NULL,
			author     TEXT NOT NULL DEFAULT '',
			is_active  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (name, version)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_system_prompts_active
			ON system_prompts(name) WHERE is_active`,
	}
}
