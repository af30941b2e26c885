// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - VectorStore: Documents, chunks and similarity search in one transactional store
//   - QueryLogStore: Append-only query telemetry
//   - PromptRegistry: Versioned system prompts
//   - EmbeddingService: Generates vector embeddings
//   - LLMService: Generates grounded answers
//   - ExtractorRegistry: Selects a text extractor by content type
//   - Chunker: Splits text into token-bounded chunks
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - ingestion degrades to primary extraction only:
//
//   - OCREngine: Recognises text in scanned PDFs and images
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or extractor package
package driven
