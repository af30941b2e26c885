package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// promptExt is the extension of prompt files. The file name without it is
// the prompt name.
const promptExt = ".txt"

// PromptSeeder imports user-editable prompt files into the prompt registry.
// Each <dir>/<name>.txt becomes a new active version of <name> whenever its
// content differs from the active version, so editing a file and running any
// command publishes the edit while older versions stay in history.
type PromptSeeder struct {
	promptDir string
	defaults  map[string]string
}

// NewPromptSeeder creates a seeder for promptDir.
// If promptDir is empty, defaults to ~/.sercha-rag/prompts/.
// defaults are written as starter files when missing; they are not
// imported unless the file is later edited or the registry lacks them.
//
// The constructor does not perform any I/O.
func NewPromptSeeder(promptDir string, defaults map[string]string) (*PromptSeeder, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".sercha-rag", "prompts")
	}

	return &PromptSeeder{
		promptDir: promptDir,
		defaults:  defaults,
	}, nil
}

// Dir returns the prompt directory path.
func (s *PromptSeeder) Dir() string {
	return s.promptDir
}

// Seed syncs every prompt file into prompts and returns the names that got
// a new version. Files are processed in name order.
func (s *PromptSeeder) Seed(ctx context.Context, prompts driving.PromptService) ([]string, error) {
	if err := s.initialise(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.promptDir)
	if err != nil {
		return nil, fmt.Errorf("read prompt directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var updated []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != promptExt {
			continue
		}
		name := strings.TrimSuffix(e.Name(), promptExt)
		path := filepath.Join(s.promptDir, e.Name())

		content, err := loadFromFile(path)
		if err != nil {
			return updated, fmt.Errorf("load prompt %q: %w", name, err)
		}
		if content == "" {
			logger.Warn("Skipping empty prompt file %s", path)
			continue
		}

		created, err := prompts.Sync(ctx, name, content, "file:"+path)
		if err != nil {
			return updated, fmt.Errorf("sync prompt %q: %w", name, err)
		}
		if created {
			logger.Info("Published new version of prompt %q from %s", name, path)
			updated = append(updated, name)
		}
	}
	return updated, nil
}

// initialise creates the prompt directory, starter files and a README.
func (s *PromptSeeder) initialise() error {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range s.defaults {
		path := filepath.Join(s.promptDir, name+promptExt)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content+"\n"), 0600); err != nil {
				return fmt.Errorf("create default prompt %q: %w", name, err)
			}
		}
	}

	return s.createReadme()
}

// loadFromFile reads a prompt from disk.
func loadFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptSeeder) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# sercha-rag prompts

Each ` + "`<name>.txt`" + ` file in this directory is a system prompt. When its
content differs from the active version in the prompt registry, the next
command publishes it as a new version and activates it.

` + "`default.txt`" + ` is used by queries that do not name a prompt. Select
another with ` + "`sercha-rag query --prompt <name>`" + `.

Older versions stay in the registry: ` + "`sercha-rag prompt list <name>`" + `.
`
	return os.WriteFile(path, []byte(content), 0600)
}
