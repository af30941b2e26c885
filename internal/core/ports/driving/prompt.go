package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// PromptService manages versioned system prompts.
type PromptService interface {
	// Create adds a new inactive version of a prompt.
	Create(ctx context.Context, name, content, author string) (*domain.SystemPrompt, error)

	// Activate makes a version the active one for its name.
	Activate(ctx context.Context, id string) (*domain.SystemPrompt, error)

	// Active returns the active version for a name.
	Active(ctx context.Context, name string) (*domain.SystemPrompt, error)

	// List returns versions, newest first. Empty name lists all.
	List(ctx context.Context, name string) ([]domain.SystemPrompt, error)

	// EnsureDefault creates and activates the built-in default prompt
	// when no version of it exists.
	EnsureDefault(ctx context.Context) error

	// Sync creates and activates a new version when content differs from
	// the active one. It reports whether a version was created.
	Sync(ctx context.Context, name, content, author string) (bool, error)
}
