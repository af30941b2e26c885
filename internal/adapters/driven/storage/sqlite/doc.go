// Package sqlite provides a SQLite-based implementation of the storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. A single database holds:
//
//   - VectorStore: documents, chunks and their embeddings
//   - QueryLogStore: append-only query telemetry
//   - PromptRegistry: versioned system prompts
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Similarity Search
//
// SQLite has no vector index. Embeddings are stored as little-endian float32
// blobs and ranked in process by exact cosine distance.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-rag/data/rag.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. The unique file_hash constraint arbitrates concurrent
// ingestion of identical content.
package sqlite
