package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from ingested documents",
	Long: `Retrieves the passages closest to the question and asks the configured
LLM to answer from them. Every passage used as context is listed as a
citation. If the LLM fails, the retrieved passages are still shown.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var (
	queryTopK      int
	queryDocument  string
	queryThreshold float64
	queryPrompt    string
	queryDebug     bool
	queryJSON      bool
)

// snippetLength caps passage text shown under each citation.
const snippetLength = 160

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "maximum passages to use (default from config)")
	queryCmd.Flags().StringVarP(&queryDocument, "document", "d", "", "restrict retrieval to one document ID")
	queryCmd.Flags().Float64VarP(&queryThreshold, "threshold", "t", 0, "minimum similarity score (default from config)")
	queryCmd.Flags().StringVar(&queryPrompt, "prompt", "", "system prompt name (default \"default\")")
	queryCmd.Flags().BoolVar(&queryDebug, "debug", false, "show retrieval scores and parameters")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	req := domain.QueryRequest{
		Query:      strings.Join(args, " "),
		TopK:       queryTopK,
		PromptName: queryPrompt,
		Debug:      queryDebug,
	}
	if queryDocument != "" {
		doc := queryDocument
		req.DocumentID = &doc
	}
	if cmd.Flags().Changed("threshold") {
		threshold := queryThreshold
		req.ScoreThreshold = &threshold
	}

	result, err := queryService.Answer(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return writeJSON(cmd, result)
	}

	printQueryResult(cmd, styles.For(cmd.OutOrStdout()), result)
	return nil
}

func printQueryResult(cmd *cobra.Command, st *styles.Styles, result *domain.QueryResult) {
	switch {
	case result.GenerationFailed:
		cmd.Println(st.Warning.Render("Answer generation failed: " + result.GenerationError))
		cmd.Println(st.Muted.Render("Showing the retrieved passages instead."))
	case result.Answer != "":
		cmd.Println(st.Answer.Render(result.Answer))
	}
	cmd.Println()

	if len(result.Citations) == 0 {
		cmd.Println(st.Muted.Render("No passages cited."))
	} else {
		cmd.Println(st.Title.Render("Sources"))
		for i, c := range result.Citations {
			line := fmt.Sprintf("  %s  document %s, chunk %d", st.Label.Render("["+c.Label+"]"), c.DocumentID, c.Ordinal)
			if i < len(result.Chunks) {
				line += st.Muted.Render(fmt.Sprintf("  score %.3f", result.Chunks[i].Score))
			}
			cmd.Println(line)
			if i < len(result.Chunks) {
				cmd.Println("    " + snippet(result.Chunks[i].Text, snippetLength))
			}
		}
	}
	cmd.Println()

	usage := fmt.Sprintf("Tokens: %d prompt + %d completion = %d", result.PromptTokens, result.CompletionTokens, result.TotalTokens)
	if result.CostUSD != nil {
		usage += fmt.Sprintf("  Cost: $%.6f", *result.CostUSD)
	}
	cmd.Println(st.Muted.Render(usage))

	if result.Debug != nil {
		printDebugInfo(cmd, st, result.Debug)
	}
}

func printDebugInfo(cmd *cobra.Command, st *styles.Styles, d *domain.DebugInfo) {
	cmd.Println()
	cmd.Println(st.Title.Render("Debug"))
	cmd.Printf("  Top K: %d\n", d.TopK)
	if d.ScoreThreshold != nil {
		cmd.Printf("  Score threshold: %.3f\n", *d.ScoreThreshold)
	}
	if d.DocumentFilter != nil {
		cmd.Printf("  Document filter: %s\n", *d.DocumentFilter)
	}
	cmd.Printf("  Prompt: %s v%d\n", d.PromptName, d.PromptVersion)
	if d.Model != "" {
		cmd.Printf("  Model: %s\n", d.Model)
	}
	for i := range d.Scores {
		var distance float64
		if i < len(d.Distances) {
			distance = d.Distances[i]
		}
		cmd.Printf("  #%d score=%.4f distance=%.4f\n", i+1, d.Scores[i], distance)
	}
}

// snippet collapses whitespace and truncates to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
