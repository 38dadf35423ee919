package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/domain"
)

// AskPort is the TUI-facing subset of the pipeline.
type AskPort interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

type answerStartedMsg struct {
	answer domain.Answer
}

type fragmentMsg struct{ content string }

type streamDoneMsg struct{}

type askFailedMsg struct{ err error }

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	service     AskPort
	input       textinput.Model
	viewport    viewport.Model
	summary     string
	status      string
	answer      string // plain string: tea copies the model by value on every Update
	sources     []domain.RankedCandidate
	fragments   <-chan domain.Fragment
	cancel      context.CancelFunc
	showSources bool
	streaming   bool
	busy        bool
	ready       bool
	lastQ       string
}

// New creates a new TUI model. The summary line describes what was ingested.
func New(service AskPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your document and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. Ctrl+S toggles sources, Esc stops a running answer.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// ask starts a generation for the question, off the update loop. The ctx is
// created (and its cancel stored) before the command runs, so Esc can abort
// the request during retrieval, not just once streaming has begun.
func (m Model) ask(ctx context.Context, question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.service.Ask(ctx, question)
		if err != nil {
			return askFailedMsg{err}
		}
		return answerStartedMsg{answer: answer}
	}
}

// waitForFragment pulls the next streamed fragment.
func waitForFragment(fragments <-chan domain.Fragment) tea.Cmd {
	return func() tea.Msg {
		frag, ok := <-fragments
		if !ok {
			return streamDoneMsg{}
		}
		if frag.Err != nil {
			return askFailedMsg{frag.Err}
		}
		return fragmentMsg{content: frag.Content}
	}
}

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, input frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.content())
		return m, nil

	case answerStartedMsg:
		if !m.busy {
			// Stopped while retrieval was in flight.
			return m, nil
		}
		m.fragments = msg.answer.Fragments
		m.sources = msg.answer.Sources
		m.streaming = true
		m.status = fmt.Sprintf("Answering %q…", m.lastQ)
		m.viewport.SetContent(m.content())
		return m, waitForFragment(m.fragments)

	case fragmentMsg:
		if !m.streaming {
			return m, nil
		}
		m.answer += msg.content
		m.viewport.SetContent(m.content())
		m.viewport.GotoBottom()
		return m, waitForFragment(m.fragments)

	case streamDoneMsg:
		if !m.streaming {
			// The channel of a stopped stream closes on cancellation; that
			// must not overwrite the stopped status.
			return m, nil
		}
		m.finishStream()
		m.status = fmt.Sprintf("Done. %d source chunks used (Ctrl+S to inspect).", len(m.sources))
		return m, nil

	case askFailedMsg:
		if !m.busy {
			return m, nil
		}
		m.finishStream()
		// Partial output already streamed stays on screen.
		m.status = "Error: " + msg.err.Error()
		m.viewport.SetContent(m.content())
		return m, nil

	case tea.KeyMsg:
		switch {
		case msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD:
			m.finishStream()
			return m, tea.Quit
		case msg.Type == tea.KeyEsc:
			if m.busy {
				m.finishStream()
				m.status = "Stopped."
			}
			return m, nil
		case msg.Type == tea.KeyCtrlS:
			m.showSources = !m.showSources
			m.viewport.SetContent(m.content())
			return m, nil
		case msg.Type == tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			ctx, cancel := context.WithCancel(context.Background())
			m.cancel = cancel
			m.busy = true
			m.lastQ = q
			m.answer = ""
			m.sources = nil
			m.showSources = false
			m.status = "Retrieving…"
			m.viewport.SetContent(m.content())
			return m, m.ask(ctx, q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// finishStream drops the stream and releases the in-flight request.
func (m *Model) finishStream() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.fragments = nil
	m.streaming = false
	m.busy = false
}

// View renders the layout: header, ingest summary, answer (or sources),
// input, status.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docchat — ask your document")
	summary := summaryStyle.Render(m.summary)
	body := answerBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) content() string {
	if m.showSources {
		return m.renderSources()
	}
	if m.answer == "" {
		if m.streaming {
			return "…"
		}
		return "No answer yet."
	}
	return m.answer
}

func (m Model) renderSources() string {
	if len(m.sources) == 0 {
		return "No sources for the last answer."
	}
	var sb strings.Builder
	for i, src := range m.sources {
		title := fmt.Sprintf("[%d] %s  candidate #%d  similarity=%.3f  relevance=%.3f",
			i+1, src.ID, src.CandidateIndex, src.Score, src.Relevance)
		sb.WriteString(sourceTitleStyle.Render(title))
		sb.WriteString("\n")
		sb.WriteString(src.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

var (
	answerBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	summaryStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	sourceTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
