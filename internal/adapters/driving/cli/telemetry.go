package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent query logs",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate usage metrics",
	Args:  cobra.NoArgs,
	RunE:  runMetrics,
}

var (
	logsLimit   int
	logsJSON    bool
	metricsJSON bool
)

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "number of logs to show")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "print JSON")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "print JSON")
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(metricsCmd)
}

// logRow is the JSON form of a query log.
type logRow struct {
	ID                string   `json:"id"`
	Query             string   `json:"query"`
	RetrievedChunkIDs []string `json:"retrieved_chunk_ids"`
	PromptTokens      int      `json:"prompt_tokens"`
	CompletionTokens  int      `json:"completion_tokens"`
	TotalTokens       int      `json:"total_tokens"`
	CostUSD           *float64 `json:"cost_usd"`
	LatencyMS         int64    `json:"latency_ms"`
	CreatedAt         string   `json:"created_at"`
}

func runLogs(cmd *cobra.Command, _ []string) error {
	if telemetryService == nil {
		return errNotConfigured("telemetry")
	}

	logs, err := telemetryService.QueryLogs(cmd.Context(), logsLimit)
	if err != nil {
		return fmt.Errorf("failed to get query logs: %w", err)
	}

	if logsJSON {
		rows := make([]logRow, 0, len(logs))
		for i := range logs {
			rows = append(rows, logRow{
				ID:                logs[i].ID,
				Query:             logs[i].QueryText,
				RetrievedChunkIDs: logs[i].RetrievedChunkIDs,
				PromptTokens:      logs[i].PromptTokens,
				CompletionTokens:  logs[i].CompletionTokens,
				TotalTokens:       logs[i].TotalTokens,
				CostUSD:           logs[i].CostUSD,
				LatencyMS:         logs[i].LatencyMS,
				CreatedAt:         logs[i].CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return writeJSON(cmd, rows)
	}

	if len(logs) == 0 {
		cmd.Println("No queries logged yet.")
		return nil
	}

	for i := range logs {
		cmd.Printf("%s  %s\n", logs[i].CreatedAt.Local().Format(time.DateTime), logs[i].QueryText)
		cmd.Printf("  passages: %d  tokens: %d  latency: %dms  cost: %s\n",
			len(logs[i].RetrievedChunkIDs), logs[i].TotalTokens, logs[i].LatencyMS, formatCost(logs[i].CostUSD))
		if len(logs[i].RetrievedChunkIDs) > 0 {
			cmd.Printf("  chunks: %s\n", strings.Join(logs[i].RetrievedChunkIDs, ", "))
		}
	}
	return nil
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	if telemetryService == nil {
		return errNotConfigured("telemetry")
	}

	m, err := telemetryService.Metrics(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get metrics: %w", err)
	}

	if metricsJSON {
		return writeJSON(cmd, m)
	}

	cmd.Println("Usage Metrics")
	cmd.Println("=============")
	cmd.Printf("  Documents: %d\n", m.TotalDocuments)
	cmd.Printf("  Chunks: %d\n", m.TotalChunks)
	cmd.Printf("  Queries: %d\n", m.TotalQueries)
	cmd.Printf("  Average latency: %s\n", formatOptional(m.AvgLatencyMS, "%.1fms"))
	cmd.Printf("  Total tokens: %d\n", m.TotalTokens)
	cmd.Printf("  Average tokens per query: %s\n", formatOptional(m.AvgTokensPerQuery, "%.1f"))
	cmd.Printf("  Estimated cost: %s\n", formatCost(m.TotalCostUSD))
	return nil
}

func formatCost(cost *float64) string {
	return formatOptional(cost, "$%.6f")
}

func formatOptional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}
