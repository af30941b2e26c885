package driven

import "context"

// Extractor turns raw document bytes into plain text.
// Each extractor handles specific content types (e.g., PDF, Markdown).
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// SupportedContentTypes returns the content types this extractor handles.
	// A trailing "/*" matches a whole family, e.g. "image/*".
	SupportedContentTypes() []string

	// Priority returns the selection priority (higher = preferred).
	Priority() int

	// Extract returns the document's text.
	Extract(ctx context.Context, content []byte, contentType string) (string, error)
}

// ExtractorRegistry selects the extractor for a content type.
type ExtractorRegistry interface {
	// Get returns the highest-priority extractor for the content type.
	Get(contentType string) (Extractor, bool)

	// Supports returns true if any extractor handles the content type.
	Supports(contentType string) bool
}

// OCREngine recognises text in scanned documents and images.
type OCREngine interface {
	// Available returns true if the engine can run in this environment.
	Available() bool

	// Eligible returns true if the content type can be recognised.
	Eligible(contentType string) bool

	// Recognise returns the text found in the content.
	Recognise(ctx context.Context, content []byte, contentType string) (string, error)
}
