// Package domain defines the core business entities for sercha-rag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A unique piece of uploaded content, identified by its digest
//   - Chunk: A token-budgeted passage of a document, used as the retrieval unit
//   - QueryLog: Append-only telemetry for an answered question
//   - SystemPrompt: A versioned system prompt with a single active version per name
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
