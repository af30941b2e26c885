package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/watch"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|dir]...",
	Short: "Ingest files into the knowledge base",
	Long: `Extracts text from each file, splits it into chunks, embeds them and
stores the result. Directories are ingested recursively, skipping hidden
entries. Content that was ingested before is recognised by its SHA-256
digest and not stored again.

Supported: plain text, Markdown, HTML, DOCX and PDF. Scanned PDFs and images
are read with OCR when tesseract is installed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var (
	ingestContentType string
	ingestJSON        bool
)

func init() {
	ingestCmd.Flags().StringVar(&ingestContentType, "content-type", "", "MIME type for file arguments (default detected)")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print one JSON result per file")
	rootCmd.AddCommand(ingestCmd)
}

// ingestRow is the JSON form of one ingested file.
type ingestRow struct {
	Path string `json:"path"`
	*domain.IngestResult
	Error string `json:"error,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}

	var failed int
	report := func(path string, result *domain.IngestResult, err error) {
		if err != nil {
			failed++
		}
		if ingestJSON {
			row := ingestRow{Path: path, IngestResult: result}
			if err != nil {
				row.Error = err.Error()
			}
			_ = writeJSON(cmd, row)
			return
		}
		printIngestResult(cmd, path, result, err)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			report(arg, nil, err)
			continue
		}
		if info.IsDir() {
			w := watch.New(arg, ingestService, watch.WithResultFunc(report))
			if err := w.Scan(cmd.Context()); err != nil {
				return fmt.Errorf("failed to scan %s: %w", arg, err)
			}
			continue
		}
		result, err := ingestPath(cmd, arg)
		report(arg, result, err)
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) failed to ingest", failed)
	}
	return nil
}

func ingestPath(cmd *cobra.Command, path string) (*domain.IngestResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, domain.NewValidationError("content", "must not be empty")
	}
	return ingestService.Ingest(cmd.Context(), domain.IngestRequest{
		Content:     content,
		Filename:    filepath.Base(path),
		ContentType: ingestContentType,
	})
}

func printIngestResult(cmd *cobra.Command, path string, result *domain.IngestResult, err error) {
	switch {
	case err != nil:
		cmd.Printf("FAILED  %s: %v\n", path, err)
	case result.AlreadyExisted:
		cmd.Printf("EXISTS  %s -> %s\n", path, result.DocumentID)
	default:
		note := ""
		if result.OCRUsed {
			note = " (OCR)"
		}
		cmd.Printf("OK      %s -> %s, %d chunks%s\n", path, result.DocumentID, result.ChunksIngested, note)
	}
}
