// Package chunker provides a sentence-aligned, token-budgeted text chunker.
package chunker

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// DefaultTokenBudget is the default maximum estimated tokens per chunk.
const DefaultTokenBudget = 400

// DefaultOverlapTokens is the default number of estimated tokens carried
// from the end of one chunk into the start of the next.
const DefaultOverlapTokens = 80

// tokensPerWord approximates GPT tokenisation for English prose.
const tokensPerWord = 1.33

// Processor splits text into chunks on sentence boundaries.
// It implements the Chunker interface.
type Processor struct {
	tokenBudget   int
	overlapTokens int
}

var _ driven.Chunker = (*Processor)(nil)

// Option configures the chunker processor.
type Option func(*Processor)

// WithTokenBudget sets the maximum estimated tokens per chunk.
func WithTokenBudget(budget int) Option {
	return func(p *Processor) {
		if budget > 0 {
			p.tokenBudget = budget
		}
	}
}

// WithOverlapTokens sets the estimated tokens of overlap between chunks.
func WithOverlapTokens(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlapTokens = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		tokenBudget:   DefaultTokenBudget,
		overlapTokens: DefaultOverlapTokens,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap stays below the budget
	if p.overlapTokens >= p.tokenBudget {
		p.overlapTokens = p.tokenBudget / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// TokenBudget returns the configured budget.
func (p *Processor) TokenBudget() int {
	return p.tokenBudget
}

// OverlapTokens returns the configured overlap.
func (p *Processor) OverlapTokens() int {
	return p.overlapTokens
}

// EstimateTokens approximates the token count of text as words × 1.33,
// rounded half to even, with a minimum of 1.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return max(1, int(math.RoundToEven(float64(words)*tokensPerWord)))
}

// SplitSentences normalises whitespace and splits text after '.', '!' or '?'
// when followed by whitespace. Terminal punctuation stays with its sentence.
func SplitSentences(text string) []string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(cleaned)-1; i++ {
		switch cleaned[i] {
		case '.', '!', '?':
			if cleaned[i+1] == ' ' {
				sentences = append(sentences, cleaned[start:i+1])
				start = i + 2
			}
		}
	}
	if start < len(cleaned) {
		sentences = append(sentences, cleaned[start:])
	}
	return sentences
}

type sentence struct {
	text   string
	tokens int
}

// Chunk splits text into chunks with contiguous ordinals starting at 0.
// Each chunk holds whole sentences and stays within the token budget,
// except a single sentence larger than the budget, which is emitted alone.
// Consecutive chunks share trailing sentences totalling at most the overlap.
//
// TokenEstimate is the sum of the per-sentence estimates and is what the
// budget bounds. Rounding happens per sentence, so EstimateTokens over the
// joined Text can come out higher than TokenEstimate and the budget.
func (p *Processor) Chunk(text string) []domain.Chunk {
	raw := SplitSentences(text)
	if len(raw) == 0 {
		return []domain.Chunk{}
	}

	chunks := make([]domain.Chunk, 0, len(raw)/4+1)
	var current []sentence
	currentTokens := 0

	emit := func(group []sentence, tokens int) {
		parts := make([]string, len(group))
		for i, s := range group {
			parts[i] = s.text
		}
		chunks = append(chunks, domain.Chunk{
			ID:            uuid.New().String(),
			Text:          strings.Join(parts, " "),
			Ordinal:       len(chunks),
			TokenEstimate: tokens,
		})
	}

	for _, r := range raw {
		s := sentence{text: r, tokens: EstimateTokens(r)}

		if s.tokens > p.tokenBudget {
			if len(current) > 0 {
				emit(current, currentTokens)
			}
			emit([]sentence{s}, s.tokens)
			current, currentTokens = nil, 0
			continue
		}

		if len(current) > 0 && currentTokens+s.tokens > p.tokenBudget {
			emit(current, currentTokens)
			current, currentTokens = p.carryOver(current, s.tokens)
		}

		current = append(current, s)
		currentTokens += s.tokens
	}

	if len(current) > 0 {
		emit(current, currentTokens)
	}

	return chunks
}

// carryOver returns the tail sentences of a closed chunk whose estimates sum
// to at most the overlap, trimmed from the front until the next sentence fits.
func (p *Processor) carryOver(closed []sentence, nextTokens int) ([]sentence, int) {
	if p.overlapTokens <= 0 {
		return nil, 0
	}

	used := 0
	start := len(closed)
	for start > 0 && used+closed[start-1].tokens <= p.overlapTokens {
		start--
		used += closed[start].tokens
	}

	for start < len(closed) && used+nextTokens > p.tokenBudget {
		used -= closed[start].tokens
		start++
	}

	if start == len(closed) {
		return nil, 0
	}
	carried := make([]sentence, len(closed)-start)
	copy(carried, closed[start:])
	return carried, used
}
