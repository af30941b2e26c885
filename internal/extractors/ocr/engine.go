// Package ocr recognises text in images and scanned PDFs using tesseract.
// PDFs are rasterised with pdftoppm first.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/extractors/command"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Default tool names.
const (
	DefaultTesseractPath = "tesseract"
	DefaultPDFToPPMPath  = "pdftoppm"
)

// rasterDPI balances recognition quality against time per page.
const rasterDPI = "300"

// ErrRasteriserNotFound is returned when a PDF needs OCR but pdftoppm is missing.
var ErrRasteriserNotFound = errors.New("pdftoppm not found: install poppler-utils")

// Ensure Engine implements the interface.
var _ driven.OCREngine = (*Engine)(nil)

// Engine runs tesseract through a command.Runner.
type Engine struct {
	tesseract string
	pdftoppm  string
	runner    command.Runner
}

// New creates an OCR engine. Empty paths select the defaults and a nil
// runner selects command.ExecRunner.
func New(tesseractPath, pdftoppmPath string, runner command.Runner) *Engine {
	if tesseractPath == "" {
		tesseractPath = DefaultTesseractPath
	}
	if pdftoppmPath == "" {
		pdftoppmPath = DefaultPDFToPPMPath
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Engine{tesseract: tesseractPath, pdftoppm: pdftoppmPath, runner: runner}
}

// Available reports whether tesseract is installed.
func (e *Engine) Available() bool {
	return e.runner.LookPath(e.tesseract) == nil
}

// Eligible returns true for PDFs and images.
func (e *Engine) Eligible(contentType string) bool {
	return contentType == "application/pdf" || strings.HasPrefix(contentType, "image/")
}

// Recognise returns the recognised text. PDF pages are joined with blank lines.
func (e *Engine) Recognise(ctx context.Context, content []byte, contentType string) (string, error) {
	if !e.Eligible(contentType) {
		return "", fmt.Errorf("ocr: content type %q not supported", contentType)
	}
	if contentType == "application/pdf" {
		return e.recognisePDF(ctx, content)
	}

	out, err := e.runner.Run(ctx, content, e.tesseract, "stdin", "stdout")
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (e *Engine) recognisePDF(ctx context.Context, content []byte) (string, error) {
	if err := e.runner.LookPath(e.pdftoppm); err != nil {
		return "", ErrRasteriserNotFound
	}

	dir, err := os.MkdirTemp("", "sercha-rag-ocr-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := e.runner.Run(ctx, content, e.pdftoppm, "-r", rasterDPI, "-png", "-", prefix); err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w", err)
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", err
	}
	// pdftoppm zero-pads page numbers to a common width.
	sort.Strings(pages)
	logger.Debug("OCR: rasterised %d pages", len(pages))

	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := e.runner.Run(ctx, nil, e.tesseract, page, "stdout")
		if err != nil {
			return "", fmt.Errorf("tesseract failed on %s: %w", filepath.Base(page), err)
		}
		if text := strings.TrimSpace(string(out)); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}
