// Package extractors turns uploaded documents into plain text. Each
// subpackage handles one family of content types; Registry picks the
// highest-priority extractor for a request.
package extractors

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/extractors/command"
	"github.com/custodia-labs/sercha-rag/internal/extractors/docx"
	"github.com/custodia-labs/sercha-rag/internal/extractors/eml"
	"github.com/custodia-labs/sercha-rag/internal/extractors/html"
	"github.com/custodia-labs/sercha-rag/internal/extractors/markdown"
	"github.com/custodia-labs/sercha-rag/internal/extractors/ocr"
	"github.com/custodia-labs/sercha-rag/internal/extractors/pdf"
	"github.com/custodia-labs/sercha-rag/internal/extractors/plaintext"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps content types to extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors []driven.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an extractor.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, e)
}

// Get returns the highest-priority extractor for contentType. Exact matches
// and "family/*" wildcards compete on priority alone; ties go to the
// earliest registration.
func (r *Registry) Get(contentType string) (driven.Extractor, bool) {
	contentType = normalise(contentType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best driven.Extractor
	for _, e := range r.extractors {
		if !handles(e, contentType) {
			continue
		}
		if best == nil || e.Priority() > best.Priority() {
			best = e
		}
	}
	return best, best != nil
}

// Supports returns true if any extractor handles contentType.
func (r *Registry) Supports(contentType string) bool {
	_, ok := r.Get(contentType)
	return ok
}

// ContentTypes returns every registered content type pattern, sorted.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range r.extractors {
		for _, ct := range e.SupportedContentTypes() {
			seen[ct] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for ct := range seen {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

func handles(e driven.Extractor, contentType string) bool {
	for _, pattern := range e.SupportedContentTypes() {
		if family, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(contentType, family+"/") {
				return true
			}
			continue
		}
		if pattern == contentType {
			return true
		}
	}
	return false
}

// normalise lower-cases and drops parameters such as charset.
func normalise(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// NewDefault builds the registry and OCR engine from extraction settings.
// Images are only accepted when tesseract is installed, since OCR is their
// sole source of text. A nil runner selects command.ExecRunner.
func NewDefault(cfg domain.ExtractionSettings, runner command.Runner) (*Registry, *ocr.Engine) {
	if runner == nil {
		runner = command.ExecRunner{}
	}

	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(docx.New())
	r.Register(eml.New())

	pdfExtractor := pdf.New(cfg.PDFToTextPath, runner)
	if !pdfExtractor.Available() {
		logger.Warn("pdftotext not found, PDFs will rely on OCR")
	}
	r.Register(pdfExtractor)

	engine := ocr.New(cfg.TesseractPath, cfg.PDFToPPMPath, runner)
	if engine.Available() {
		r.Register(imageExtractor{})
	} else {
		logger.Debug("tesseract not found, OCR disabled")
	}

	return r, engine
}

// imageExtractor accepts images so ingest reaches the OCR fallback.
type imageExtractor struct{}

func (imageExtractor) Name() string                    { return "image" }
func (imageExtractor) SupportedContentTypes() []string { return []string{"image/*"} }
func (imageExtractor) Priority() int                   { return 1 }

func (imageExtractor) Extract(context.Context, []byte, string) (string, error) {
	return "", nil
}
