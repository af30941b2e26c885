package domain

// IngestRequest carries raw content to be ingested.
type IngestRequest struct {
	// Content is the raw uploaded bytes.
	Content []byte

	// Filename is the original file name.
	Filename string

	// ContentType is the declared MIME type. When empty it is detected.
	ContentType string
}

// IngestResult describes the outcome of an ingestion.
type IngestResult struct {
	// DocumentID is the document holding the content, new or pre-existing.
	DocumentID string `json:"document_id"`

	// ChunksIngested is the number of chunks written by this call.
	// It is zero when the content already existed.
	ChunksIngested int `json:"chunks_ingested"`

	// AlreadyExisted is true when identical content had already been ingested.
	AlreadyExisted bool `json:"already_existed"`

	// OCRUsed is true when text was recovered by OCR.
	OCRUsed bool `json:"ocr_used"`
}
