package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// MockQueryService implements driving.QueryService for testing.
type MockQueryService struct {
	AnswerFunc func(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
	Requests   []domain.QueryRequest
}

func (m *MockQueryService) Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	m.Requests = append(m.Requests, req)
	if m.AnswerFunc != nil {
		return m.AnswerFunc(ctx, req)
	}
	return &domain.QueryResult{
		Query:       req.Query,
		Answer:      "Refunds take five days [Passage 1].",
		Citations:   []domain.Citation{{Label: "Passage 1", Rank: 1, ChunkID: "chunk-1", DocumentID: "doc-1"}},
		Chunks:      []domain.RetrievedChunk{{ChunkID: "chunk-1", DocumentID: "doc-1", Text: "Refunds take five days.", Score: 0.91}},
		TotalTokens: 120,
	}, nil
}

func newTestChat(t *testing.T, svc *MockQueryService, opts Options) *Chat {
	t.Helper()
	c, err := NewChat(context.Background(), svc, opts, styles.NewStyles(nil))
	require.NoError(t, err)
	c.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return c
}

func typeText(c *Chat, text string) {
	c.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// submit presses enter and runs the resulting query command synchronously.
func submit(t *testing.T, c *Chat) {
	t.Helper()
	_, cmd := c.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.True(t, c.busy)
	c.Update(c.ask(c.history[len(c.history)-1].question)())
}

func TestNewChat_RequiresQueryService(t *testing.T) {
	_, err := NewChat(context.Background(), nil, Options{}, nil)
	assert.ErrorIs(t, err, ErrMissingQueryService)
}

func TestChat_ViewBeforeResize(t *testing.T) {
	c, err := NewChat(context.Background(), &MockQueryService{}, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Loading...", c.View())
}

func TestChat_EmptyTranscript(t *testing.T) {
	c := newTestChat(t, &MockQueryService{}, Options{})
	assert.Contains(t, c.View(), "Ask anything about your ingested documents.")
}

func TestChat_AskShowsAnswerAndCitations(t *testing.T) {
	svc := &MockQueryService{}
	c := newTestChat(t, svc, Options{TopK: 3, DocumentID: "doc-1", PromptName: "support"})

	typeText(c, "How long do refunds take?")
	submit(t, c)

	assert.False(t, c.busy)
	require.Len(t, svc.Requests, 1)
	req := svc.Requests[0]
	assert.Equal(t, "How long do refunds take?", req.Query)
	assert.Equal(t, 3, req.TopK)
	require.NotNil(t, req.DocumentID)
	assert.Equal(t, "doc-1", *req.DocumentID)
	assert.Equal(t, "support", req.PromptName)

	view := c.transcript()
	assert.Contains(t, view, "You: How long do refunds take?")
	assert.Contains(t, view, "Refunds take five days [Passage 1].")
	assert.Contains(t, view, "[Passage 1] document doc-1, chunk 0  score 0.910")
	assert.Contains(t, view, "120 tokens")
	assert.Empty(t, c.input.Value())
}

func TestChat_EmptyQuestionIgnored(t *testing.T) {
	svc := &MockQueryService{}
	c := newTestChat(t, svc, Options{})

	typeText(c, "   ")
	_, cmd := c.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.False(t, c.busy)
	assert.Empty(t, c.history)
}

func TestChat_BusyIgnoresSecondQuestion(t *testing.T) {
	c := newTestChat(t, &MockQueryService{}, Options{})

	typeText(c, "first")
	c.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(c, "second")
	_, cmd := c.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Len(t, c.history, 1)
}

func TestChat_ToggleSources(t *testing.T) {
	c := newTestChat(t, &MockQueryService{}, Options{})
	typeText(c, "refunds?")
	submit(t, c)
	assert.NotContains(t, c.transcript(), "    Refunds take five days.")

	c.Update(tea.KeyMsg{Type: tea.KeyTab})

	assert.True(t, c.showSources)
	assert.Contains(t, c.transcript(), "    Refunds take five days.")
}

func TestChat_ErrorAndDegradedResults(t *testing.T) {
	calls := 0
	svc := &MockQueryService{
		AnswerFunc: func(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("store offline")
			}
			return &domain.QueryResult{Query: req.Query, GenerationFailed: true, GenerationError: "llm timeout"}, nil
		},
	}
	c := newTestChat(t, svc, Options{})

	typeText(c, "one")
	submit(t, c)
	typeText(c, "two")
	submit(t, c)

	view := c.transcript()
	assert.Contains(t, view, "Error: store offline")
	assert.Contains(t, view, "Answer generation failed: llm timeout")
}

func TestChat_Quit(t *testing.T) {
	c := newTestChat(t, &MockQueryService{}, Options{})

	_, cmd := c.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestChat_StatusShowsHelp(t *testing.T) {
	c := newTestChat(t, &MockQueryService{}, Options{})
	assert.Contains(t, c.status(), "enter ask")
	assert.Contains(t, c.status(), "esc quit")
}
