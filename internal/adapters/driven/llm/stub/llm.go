// Package stub provides an offline LLM service that answers extractively.
//
// The answer is the first passage of the context block in the user message,
// which makes the full query path runnable without a model provider.
package stub

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/chunker"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// DefaultModel is the model name reported in completions.
const DefaultModel = "stub"

const (
	passageHeader   = "[Passage 1]\n"
	passageSep      = "\n\n---\n\n"
	questionMarker  = "\n\nQuestion: "
	fallbackAnswer  = "I could not find an answer in the provided passages."
	maxAnswerTokens = 200
)

// LLMService returns the leading passage as the answer.
type LLMService struct {
	model string
}

// NewLLMService creates a stub LLM. An empty model uses DefaultModel.
func NewLLMService(model string) *LLMService {
	if model == "" {
		model = DefaultModel
	}
	return &LLMService{model: model}
}

// Complete extracts the first passage from user and reports estimated usage.
func (s *LLMService) Complete(ctx context.Context, system, user string, opts driven.ChatOptions) (*driven.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer := firstPassage(user)
	if answer == "" {
		answer = fallbackAnswer
	}

	limit := maxAnswerTokens
	if opts.MaxTokens > 0 && opts.MaxTokens < limit {
		limit = opts.MaxTokens
	}
	answer = truncateWords(answer, limit)

	prompt := chunker.EstimateTokens(system) + chunker.EstimateTokens(user)
	completion := chunker.EstimateTokens(answer)
	return &driven.Completion{
		Content:          answer,
		Model:            s.model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}, nil
}

func firstPassage(user string) string {
	i := strings.Index(user, passageHeader)
	if i < 0 {
		return ""
	}
	rest := user[i+len(passageHeader):]
	if j := strings.Index(rest, passageSep); j >= 0 {
		rest = rest[:j]
	} else if j := strings.LastIndex(rest, questionMarker); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// truncateWords keeps roughly limit tokens worth of words.
func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	maxWords := int(float64(limit) / 1.33)
	if maxWords < 1 {
		maxWords = 1
	}
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + " ..."
}

// Provider returns the stub provider.
func (s *LLMService) Provider() domain.AIProvider { return domain.AIProviderStub }

// ModelName returns the reported model name.
func (s *LLMService) ModelName() string { return s.model }

// Ping always succeeds.
func (s *LLMService) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *LLMService) Close() error { return nil }
