package services

import (
	"context"
	"errors"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure PromptService implements the interface.
var _ driving.PromptService = (*PromptService)(nil)

// DefaultSystemPrompt grounds answers in the supplied passages.
const DefaultSystemPrompt = `You answer questions using only the context passages supplied with each question.

Rules:
1. Use only facts stated in the passages. Do not add outside knowledge.
2. If the passages do not contain the answer, say that the knowledge base does not cover it.
3. Refer to the passages you rely on by their labels, for example [Passage 1].
4. Keep answers concise and answer in the language of the question.`

// builtinAuthor marks prompts created by the application itself.
const builtinAuthor = "system"

// PromptService manages versioned system prompts.
type PromptService struct {
	registry driven.PromptRegistry
}

// NewPromptService creates a new prompt service.
func NewPromptService(registry driven.PromptRegistry) *PromptService {
	return &PromptService{registry: registry}
}

// Create adds a new inactive version of a prompt.
func (s *PromptService) Create(ctx context.Context, name, content, author string) (*domain.SystemPrompt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "must not be empty")
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewValidationError("content", "must not be empty")
	}

	p, err := s.registry.CreatePrompt(ctx, name, content, author)
	if err != nil {
		return nil, storageError("create prompt", err)
	}
	logger.Event("prompt_created", "name", p.Name, "version", p.Version)
	return p, nil
}

// Activate makes a version the active one for its name.
func (s *PromptService) Activate(ctx context.Context, id string) (*domain.SystemPrompt, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError("id", "must not be empty")
	}
	p, err := s.registry.ActivatePrompt(ctx, id)
	if err != nil {
		return nil, storageError("activate prompt", err)
	}
	logger.Event("prompt_activated", "name", p.Name, "version", p.Version)
	return p, nil
}

// Active returns the active version for a name.
func (s *PromptService) Active(ctx context.Context, name string) (*domain.SystemPrompt, error) {
	if name == "" {
		name = domain.DefaultPromptName
	}
	p, err := s.registry.ActivePrompt(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.PromptNotFoundError{Name: name}
		}
		return nil, storageError("load active prompt", err)
	}
	return p, nil
}

// List returns versions, newest first.
func (s *PromptService) List(ctx context.Context, name string) ([]domain.SystemPrompt, error) {
	prompts, err := s.registry.ListPrompts(ctx, name)
	if err != nil {
		return nil, storageError("list prompts", err)
	}
	return prompts, nil
}

// EnsureDefault creates and activates the built-in default prompt when no
// version of it exists. Existing versions are left untouched, even if none
// is active.
func (s *PromptService) EnsureDefault(ctx context.Context) error {
	existing, err := s.registry.ListPrompts(ctx, domain.DefaultPromptName)
	if err != nil {
		return storageError("list prompts", err)
	}
	if len(existing) > 0 {
		return nil
	}

	p, err := s.registry.CreatePrompt(ctx, domain.DefaultPromptName, DefaultSystemPrompt, builtinAuthor)
	if err != nil {
		return storageError("create default prompt", err)
	}
	if _, err := s.registry.ActivatePrompt(ctx, p.ID); err != nil {
		return storageError("activate default prompt", err)
	}
	logger.Debug("Seeded default system prompt")
	return nil
}

// Sync creates and activates a new version when content differs from the
// active version of name. It reports whether a version was created.
func (s *PromptService) Sync(ctx context.Context, name, content, author string) (bool, error) {
	active, err := s.registry.ActivePrompt(ctx, name)
	switch {
	case err == nil:
		if strings.TrimSpace(active.Content) == strings.TrimSpace(content) {
			return false, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return false, storageError("load active prompt", err)
	}

	p, err := s.Create(ctx, name, content, author)
	if err != nil {
		return false, err
	}
	if _, err := s.Activate(ctx, p.ID); err != nil {
		return false, err
	}
	return true, nil
}
