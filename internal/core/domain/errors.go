package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates a content type no extractor handles.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Error kinds surfaced to callers.

	// ErrValidation indicates a request was rejected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrExtraction indicates no usable text could be extracted from a document.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbeddingProvider indicates the embedding provider failed after retries.
	ErrEmbeddingProvider = errors.New("embedding provider failed")

	// ErrPromptNotFound indicates no active system prompt exists for a name.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrLLMGeneration indicates the LLM failed to produce an answer.
	ErrLLMGeneration = errors.New("LLM generation failed")

	// ErrStorageUnavailable indicates the persistent store could not be reached or written.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDimensionMismatch indicates a vector length differs from the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is reports ErrValidation and ErrInvalidInput as matches.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == ErrInvalidInput
}

// ExtractionError reports that a document yielded no usable text.
type ExtractionError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction failed for %q: %s", e.Filename, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExtraction}
	}
	return []error{ErrExtraction, e.Err}
}

// DuplicateDocumentError is returned when a document with the same content
// hash already exists. DocumentID identifies the stored document.
type DuplicateDocumentError struct {
	DocumentID string
	FileHash   string
}

func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("document with hash %s already exists as %s", e.FileHash, e.DocumentID)
}

// Is reports ErrAlreadyExists as a match.
func (e *DuplicateDocumentError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// DimensionMismatchError reports a vector whose length differs from the store dimension.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Is reports ErrDimensionMismatch and ErrValidation as matches.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch || target == ErrValidation
}

// PromptNotFoundError reports a missing active prompt.
type PromptNotFoundError struct {
	Name string
}

func (e *PromptNotFoundError) Error() string {
	return fmt.Sprintf("no active system prompt named %q", e.Name)
}

// Is reports ErrPromptNotFound and ErrNotFound as matches.
func (e *PromptNotFoundError) Is(target error) bool {
	return target == ErrPromptNotFound || target == ErrNotFound
}

// RetryExhaustedError is returned when an operation failed on every attempt.
// Err is the error from the final attempt.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
