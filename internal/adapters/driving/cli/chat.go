package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `Opens a full-screen chat. Each question is answered from the ingested
documents with citations, like the query command. Press Tab to show the
cited passages and Esc to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var (
	chatTopK     int
	chatDocument string
	chatPrompt   string
)

func init() {
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "maximum passages per question (default from config)")
	chatCmd.Flags().StringVarP(&chatDocument, "document", "d", "", "restrict retrieval to one document ID")
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", "", "system prompt name (default \"default\")")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if queryService == nil {
		return errNotConfigured("query")
	}

	chat, err := tui.NewChat(cmd.Context(), queryService, tui.Options{
		TopK:       chatTopK,
		DocumentID: chatDocument,
		PromptName: chatPrompt,
	}, styles.For(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	return tui.Run(cmd.Context(), chat, stdin, cmd.OutOrStdout())
}
