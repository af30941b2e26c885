// Package pdf extracts the text layer of PDF documents using pdftotext
// from poppler-utils.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/extractors/command"
)

// ContentType is the MIME type handled by this extractor.
const ContentType = "application/pdf"

// DefaultToolPath is used when no path is configured.
const DefaultToolPath = "pdftotext"

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// Extractor pipes PDF bytes through pdftotext.
type Extractor struct {
	toolPath string
	runner   command.Runner
}

// New creates a PDF extractor. An empty toolPath selects DefaultToolPath and
// a nil runner selects command.ExecRunner.
func New(toolPath string, runner command.Runner) *Extractor {
	if toolPath == "" {
		toolPath = DefaultToolPath
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Extractor{toolPath: toolPath, runner: runner}
}

// Name identifies the extractor.
func (e *Extractor) Name() string { return "pdf" }

// SupportedContentTypes returns the content types this extractor handles.
func (e *Extractor) SupportedContentTypes() []string {
	return []string{ContentType}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Available reports whether pdftotext can be found.
func (e *Extractor) Available() bool {
	return e.runner.LookPath(e.toolPath) == nil
}

// Extract returns the text layer. Scanned PDFs without a text layer yield
// little or no text; the ingest pipeline falls back to OCR for those.
func (e *Extractor) Extract(ctx context.Context, content []byte, _ string) (string, error) {
	if len(content) == 0 {
		return "", domain.ErrInvalidInput
	}
	if !e.Available() {
		return "", ErrPDFToolNotFound
	}

	out, err := e.runner.Run(ctx, content, e.toolPath, "-layout", "-enc", "UTF-8", "-", "-")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return cleanOutput(string(out)), nil
}

// cleanOutput turns page breaks into blank lines and strips trailing
// whitespace that -layout pads lines with.
func cleanOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\f", "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// InstallInstructions returns platform hints for installing pdftotext.
func InstallInstructions() string {
	return `pdftotext is required for PDF extraction.

Install poppler:
  macOS:         brew install poppler
  Ubuntu/Debian: sudo apt install poppler-utils
  Fedora:        sudo dnf install poppler-utils`
}
