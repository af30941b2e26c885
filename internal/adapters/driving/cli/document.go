package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc"},
	Short:   "Manage ingested documents",
	Long:    `List, inspect, or delete ingested documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "Print a document's chunks in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentChunks,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Long: `Removes a document and all of its chunks. Query logs that cited the
chunks are kept. Ingesting the same content again creates a new document.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentDelete,
}

var (
	documentJSON bool
	deleteYes    bool
)

func init() {
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "print JSON")
	documentDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip confirmation")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentChunksCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

// documentRow is the JSON form of a listed document.
type documentRow struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FileHash    string `json:"file_hash"`
	ChunkCount  int    `json:"chunk_count"`
	CreatedAt   string `json:"created_at"`
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if documentJSON {
		rows := make([]documentRow, 0, len(docs))
		for i := range docs {
			rows = append(rows, documentRow{
				ID:          docs[i].ID,
				Filename:    docs[i].Filename,
				ContentType: docs[i].ContentType,
				FileHash:    docs[i].FileHash,
				ChunkCount:  docs[i].ChunkCount,
				CreatedAt:   docs[i].CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return writeJSON(cmd, rows)
	}

	if len(docs) == 0 {
		cmd.Println("No documents ingested yet.")
		return nil
	}

	cmd.Println("Documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    File: %s (%s)\n", docs[i].Filename, docs[i].ContentType)
		cmd.Printf("    Chunks: %d\n", docs[i].ChunkCount)
		cmd.Printf("    Ingested: %s\n", docs[i].CreatedAt.Local().Format(time.DateTime))
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n", doc.ID)
	cmd.Printf("  File: %s\n", doc.Filename)
	cmd.Printf("  Content type: %s\n", doc.ContentType)
	cmd.Printf("  SHA-256: %s\n", doc.FileHash)
	cmd.Printf("  Ingested: %s\n", doc.CreatedAt.Local().Format(time.DateTime))
	return nil
}

func runDocumentChunks(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	chunks, err := documentService.Chunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}

	for i := range chunks {
		cmd.Printf("--- chunk %d (%s, ~%d tokens) ---\n", chunks[i].Ordinal, chunks[i].ID, chunks[i].TokenEstimate)
		cmd.Println(chunks[i].Text)
		cmd.Println()
	}
	cmd.Printf("Total: %d chunks\n", len(chunks))
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errNotConfigured("document")
	}

	docID := args[0]
	if !deleteYes {
		cmd.Printf("Delete document %s and all its chunks? [y/N]: ", docID)
		answer := strings.ToLower(readLine(bufio.NewReader(stdin)))
		if answer != "y" && answer != "yes" {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := documentService.Delete(cmd.Context(), docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted document: %s\n", docID)
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
