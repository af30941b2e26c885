package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Options are applied to every question asked in the chat.
type Options struct {
	TopK       int
	DocumentID string
	PromptName string
}

// exchange is one question and its outcome.
type exchange struct {
	question string
	result   *domain.QueryResult
	err      error
}

// answered carries a finished query back to the model.
type answered struct {
	result *domain.QueryResult
	err    error
}

// Chat is the chat model following the Elm architecture.
type Chat struct {
	ctx     context.Context
	query   driving.QueryService
	opts    Options
	styles  *styles.Styles
	keys    *KeyMap
	input   textinput.Model
	view    viewport.Model
	spinner spinner.Model

	history     []exchange
	busy        bool
	showSources bool
	ready       bool
	width       int
}

// Ensure Chat implements tea.Model.
var _ tea.Model = (*Chat)(nil)

// NewChat creates a chat model. A nil style set uses the default theme.
func NewChat(ctx context.Context, query driving.QueryService, opts Options, s *styles.Styles) (*Chat, error) {
	if query == nil {
		return nil, ErrMissingQueryService
	}
	if s == nil {
		s = styles.NewStyles(styles.DefaultTheme())
	}

	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "Ask a question and press Enter"
	in.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return &Chat{
		ctx:     ctx,
		query:   query,
		opts:    opts,
		styles:  s,
		keys:    DefaultKeyMap(),
		input:   in,
		view:    viewport.New(80, 20),
		spinner: sp,
		width:   80,
	}, nil
}

// Init implements tea.Model.
func (c *Chat) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.SetWindowTitle("sercha-rag chat"))
}

// Update implements tea.Model.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.resize(msg.Width, msg.Height)
		return c, nil

	case tea.KeyMsg:
		return c.handleKey(msg)

	case answered:
		c.busy = false
		if len(c.history) == 0 {
			return c, nil
		}
		last := &c.history[len(c.history)-1]
		last.result, last.err = msg.result, msg.err
		c.refresh()
		return c, nil

	case spinner.TickMsg:
		if !c.busy {
			return c, nil
		}
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		c.refresh()
		return c, cmd
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *Chat) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, c.keys.Quit):
		return c, tea.Quit

	case key.Matches(msg, c.keys.Ask):
		question := strings.TrimSpace(c.input.Value())
		if question == "" || c.busy {
			return c, nil
		}
		c.busy = true
		c.history = append(c.history, exchange{question: question})
		c.input.SetValue("")
		c.refresh()
		return c, tea.Batch(c.ask(question), c.spinner.Tick)

	case key.Matches(msg, c.keys.Sources):
		c.showSources = !c.showSources
		c.refresh()
		return c, nil

	case key.Matches(msg, c.keys.ScrollUp):
		c.view.HalfPageUp()
		return c, nil

	case key.Matches(msg, c.keys.ScrollDown):
		c.view.HalfPageDown()
		return c, nil
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *Chat) ask(question string) tea.Cmd {
	req := domain.QueryRequest{
		Query:      question,
		TopK:       c.opts.TopK,
		PromptName: c.opts.PromptName,
	}
	if c.opts.DocumentID != "" {
		doc := c.opts.DocumentID
		req.DocumentID = &doc
	}
	return func() tea.Msg {
		result, err := c.query.Answer(c.ctx, req)
		return answered{result: result, err: err}
	}
}

func (c *Chat) resize(width, height int) {
	c.ready = true
	c.width = width
	// Input, status and help take three lines plus a spacer.
	c.view.Width = max(20, width)
	c.view.Height = max(3, height-4)
	c.input.Width = max(10, width-4)
	c.refresh()
}

func (c *Chat) refresh() {
	c.view.SetContent(c.transcript())
	c.view.GotoBottom()
}

// View implements tea.Model.
func (c *Chat) View() string {
	if !c.ready {
		return "Loading..."
	}
	return c.view.View() + "\n\n" + c.input.View() + "\n" + c.status()
}

func (c *Chat) status() string {
	if c.busy {
		return c.spinner.View() + c.styles.Muted.Render(" retrieving and generating...")
	}
	help := make([]string, 0, len(c.keys.ShortHelp()))
	for _, b := range c.keys.ShortHelp() {
		help = append(help, b.Help().Key+" "+b.Help().Desc)
	}
	return c.styles.Muted.Render(strings.Join(help, " • "))
}

func (c *Chat) transcript() string {
	if len(c.history) == 0 {
		return c.styles.Muted.Render("Ask anything about your ingested documents.")
	}

	var b strings.Builder
	for i, ex := range c.history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(c.styles.Title.Render("You: ") + ex.question + "\n")
		switch {
		case ex.err != nil:
			b.WriteString(c.styles.Error.Render("Error: "+ex.err.Error()) + "\n")
		case ex.result == nil:
			// Still waiting.
		default:
			b.WriteString(c.renderResult(ex.result))
		}
	}
	return b.String()
}

func (c *Chat) renderResult(r *domain.QueryResult) string {
	var b strings.Builder
	if r.GenerationFailed {
		b.WriteString(c.styles.Warning.Render("Answer generation failed: "+r.GenerationError) + "\n")
	} else {
		answer := lipgloss.NewStyle().Width(max(20, c.width-4)).Render(r.Answer)
		b.WriteString(c.styles.Answer.Render(answer) + "\n")
	}

	for i, cit := range r.Citations {
		line := fmt.Sprintf("  [%s] document %s, chunk %d", cit.Label, cit.DocumentID, cit.Ordinal)
		if i < len(r.Chunks) {
			line += fmt.Sprintf("  score %.3f", r.Chunks[i].Score)
		}
		b.WriteString(c.styles.Label.Render(line) + "\n")
		if c.showSources && i < len(r.Chunks) {
			text := lipgloss.NewStyle().Width(max(20, c.width-6)).Render(r.Chunks[i].Text)
			b.WriteString(c.styles.Muted.Render(indent(text, "    ")) + "\n")
		}
	}

	usage := fmt.Sprintf("  %d tokens", r.TotalTokens)
	if r.CostUSD != nil {
		usage += fmt.Sprintf(", $%.6f", *r.CostUSD)
	}
	b.WriteString(c.styles.Muted.Render(usage) + "\n")
	return b.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

// Run starts the chat on the terminal attached to in and out and blocks
// until the user quits or ctx is cancelled.
func Run(ctx context.Context, chat *Chat, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(chat,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
