package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// PromptRegistry stores versioned system prompts.
// Versions are append-only and at most one version per name is active.
type PromptRegistry interface {
	// CreatePrompt appends a new inactive version of the named prompt.
	// The version is one greater than the highest existing version.
	CreatePrompt(ctx context.Context, name, content, author string) (*domain.SystemPrompt, error)

	// ActivatePrompt makes the given version the single active one for its name.
	// Returns domain.ErrNotFound if the ID does not exist.
	ActivatePrompt(ctx context.Context, id string) (*domain.SystemPrompt, error)

	// ActivePrompt returns the active version for a name.
	// Returns domain.ErrNotFound if no version is active.
	ActivePrompt(ctx context.Context, name string) (*domain.SystemPrompt, error)

	// ListPrompts returns versions, newest first. Empty name lists all prompts.
	ListPrompts(ctx context.Context, name string) ([]domain.SystemPrompt, error)
}
