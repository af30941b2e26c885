// Package postgres provides a PostgreSQL implementation of the storage ports
// using the pgvector extension for similarity search.
//
// Chunk embeddings live in a vector(N) column and are ranked with the
// cosine distance operator (<=>). The unique index on documents.file_hash
// arbitrates concurrent ingestion of identical content across processes.
package postgres
