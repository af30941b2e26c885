package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/watch"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files as they appear in a directory",
	Long: `Ingests every file under dir, then keeps watching and ingests files as
they are created or changed. Hidden files and editor temporaries are
ignored. Changed files are ingested as new content; earlier versions stay
until deleted. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchDebounce time.Duration
	watchNoScan   bool
)

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is ingested")
	watchCmd.Flags().BoolVar(&watchNoScan, "no-scan", false, "skip ingesting files already present")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errNotConfigured("ingest")
	}

	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", dir)
	}

	w := watch.New(dir, ingestService,
		watch.WithDebounce(watchDebounce),
		watch.WithResultFunc(func(path string, result *domain.IngestResult, err error) {
			printIngestResult(cmd, path, result, err)
		}),
	)

	if !watchNoScan {
		if err := w.Scan(cmd.Context()); err != nil {
			return fmt.Errorf("failed to scan %s: %w", dir, err)
		}
	}

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", dir)
	return w.Run(cmd.Context())
}
