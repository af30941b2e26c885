package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage system prompts",
	Long: `System prompts are versioned by name. Exactly one version of each name is
active, and queries use the active version of the prompt they name.`,
}

var promptCreateCmd = &cobra.Command{
	Use:   "create [name] [content]",
	Short: "Create a new prompt version",
	Long: `Creates a new, inactive version of a prompt. Content is read from --file
when given. Use --activate to make the new version active immediately.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPromptCreate,
}

var promptActivateCmd = &cobra.Command{
	Use:   "activate [prompt-id]",
	Short: "Make a prompt version active",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptActivate,
}

var promptListCmd = &cobra.Command{
	Use:   "list [name]",
	Short: "List prompt versions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPromptList,
}

var promptShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print the active version of a prompt",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPromptShow,
}

var (
	promptFile     string
	promptAuthor   string
	promptActivate bool
)

func init() {
	promptCreateCmd.Flags().StringVarP(&promptFile, "file", "f", "", "read content from file")
	promptCreateCmd.Flags().StringVar(&promptAuthor, "author", "", "author recorded with the version (default $USER)")
	promptCreateCmd.Flags().BoolVar(&promptActivate, "activate", false, "activate the new version")

	promptCmd.AddCommand(promptCreateCmd)
	promptCmd.AddCommand(promptActivateCmd)
	promptCmd.AddCommand(promptListCmd)
	promptCmd.AddCommand(promptShowCmd)
	rootCmd.AddCommand(promptCmd)
}

func runPromptCreate(cmd *cobra.Command, args []string) error {
	if promptService == nil {
		return errNotConfigured("prompt")
	}

	name := args[0]
	var content string
	switch {
	case promptFile != "":
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		content = string(data)
	case len(args) == 2:
		content = args[1]
	default:
		return fmt.Errorf("prompt content required: pass it as an argument or with --file")
	}

	author := promptAuthor
	if author == "" {
		author = os.Getenv("USER")
	}

	p, err := promptService.Create(cmd.Context(), name, content, author)
	if err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	cmd.Printf("Created prompt %s v%d: %s\n", p.Name, p.Version, p.ID)

	if promptActivate {
		if _, err := promptService.Activate(cmd.Context(), p.ID); err != nil {
			return fmt.Errorf("failed to activate prompt: %w", err)
		}
		cmd.Printf("Activated %s v%d\n", p.Name, p.Version)
	}
	return nil
}

func runPromptActivate(cmd *cobra.Command, args []string) error {
	if promptService == nil {
		return errNotConfigured("prompt")
	}

	p, err := promptService.Activate(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to activate prompt: %w", err)
	}
	cmd.Printf("Activated %s v%d\n", p.Name, p.Version)
	return nil
}

func runPromptList(cmd *cobra.Command, args []string) error {
	if promptService == nil {
		return errNotConfigured("prompt")
	}

	var name string
	if len(args) == 1 {
		name = args[0]
	}

	prompts, err := promptService.List(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("failed to list prompts: %w", err)
	}
	if len(prompts) == 0 {
		cmd.Println("No prompts found.")
		return nil
	}

	for i := range prompts {
		marker := " "
		if prompts[i].IsActive {
			marker = "*"
		}
		cmd.Printf("%s %s v%d  %s  %s  %s\n",
			marker, prompts[i].Name, prompts[i].Version, prompts[i].ID,
			authorOrDash(prompts[i]), prompts[i].CreatedAt.Local().Format(time.DateTime))
	}
	return nil
}

func runPromptShow(cmd *cobra.Command, args []string) error {
	if promptService == nil {
		return errNotConfigured("prompt")
	}

	name := domain.DefaultPromptName
	if len(args) == 1 {
		name = args[0]
	}

	p, err := promptService.Active(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("failed to load prompt: %w", err)
	}
	cmd.Printf("# %s v%d (%s)\n", p.Name, p.Version, p.ID)
	cmd.Println(p.Content)
	return nil
}

func authorOrDash(p domain.SystemPrompt) string {
	if p.Author == "" {
		return "-"
	}
	return p.Author
}
