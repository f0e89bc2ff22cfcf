package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"semrag/internal/domain"
)

const queryTimeout = 30 * time.Second

// RetrievalPort is the TUI-facing subset of the RAG service.
type RetrievalPort interface {
	RetrieveChunks(ctx context.Context, query string, topK int) (domain.RetrievalResult, error)
}

// resultsMsg carries the answer to one query back into Update.
type resultsMsg struct {
	query  string
	result domain.RetrievalResult
	err    error
}

// Model is the Bubble Tea model for the retrieval shell.
type Model struct {
	port      RetrievalPort
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.SearchResult
	summary   string
	status    string
	cursor    int
	ready     bool
	pending   bool
	lastQuery string
}

// New creates a TUI model. summary is shown under the header.
func New(port RetrievalPort, topK int, summary string) Model {
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		port:     port,
		topK:     topK,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Loaded. Type to search.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg.Width, msg.Height), nil
	case resultsMsg:
		return m.showResults(msg), nil
	case tea.KeyMsg:
		switch {
		case msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD:
			return m, tea.Quit
		case msg.Type == tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = fmt.Sprintf("Searching for %q...", q)
			return m, m.search(q)
		case msg.Type == tea.KeyDown && len(m.results) > 0:
			return m.moveCursor(1), nil
		case msg.Type == tea.KeyUp && len(m.results) > 0:
			return m.moveCursor(-1), nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resize fits the result viewport between the header lines and the query box.
func (m Model) resize(width, height int) Model {
	m.ready = true
	_, resultFrame := resultBoxStyle.GetFrameSize()
	_, queryFrame := queryBoxStyle.GetFrameSize()
	const chrome = 2 + 1 + 1 // header and summary, status, query line
	m.viewport.Width = max(20, width)
	m.viewport.Height = max(3, height-chrome-queryFrame-resultFrame)
	m.viewport.SetContent(m.renderCurrentResult())
	return m
}

func (m Model) showResults(msg resultsMsg) Model {
	m.pending = false
	if msg.err != nil {
		m.status = "Error: " + msg.err.Error()
		m.results = nil
	} else {
		m.status = fmt.Sprintf("%d results for %q (%d chunks stored)", len(msg.result.Chunks), msg.query, msg.result.TotalChunks)
		m.results = msg.result.Chunks
		m.cursor = 0
		m.lastQuery = msg.query
	}
	m.viewport.SetContent(m.renderCurrentResult())
	return m
}

func (m Model) moveCursor(delta int) Model {
	n := len(m.results)
	m.cursor = ((m.cursor+delta)%n + n) % n
	m.viewport.SetContent(m.renderCurrentResult())
	return m
}

func (m Model) search(query string) tea.Cmd {
	port, topK := m.port, m.topK
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		res, err := port.RetrieveChunks(ctx, query, topK)
		return resultsMsg{query: query, result: res, err: err}
	}
}

// View renders the layout and the selected result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Semantic RAG Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	c := r.Chunk
	title := fmt.Sprintf("Result %d/%d  score=%.3f  %s", m.cursor+1, len(m.results), r.Score, c.ChunkID)
	meta := fmt.Sprintf("%s  tokens=%d  unit=%d", c.DocumentName, c.TokenLength, c.Metadata.UnitIndex)
	if c.Metadata.HasMath {
		meta += "  math"
	}
	body := highlightBestSentence(c.Text, m.lastQuery)
	return title + "\n" + metaStyle.Render(meta) + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	metaStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the sentence sharing the most distinct
// words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, strings.TrimSpace(text[loc[0]:loc[1]]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	qTokens := wordSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	best, bestIdx := 0, -1
	for i, s := range sentences {
		if score := overlapCount(qTokens, s); score > best {
			best, bestIdx = score, i
		}
	}
	if bestIdx >= 0 {
		sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	}
	return strings.Join(sentences, " ")
}

func wordSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlapCount(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range wordSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
