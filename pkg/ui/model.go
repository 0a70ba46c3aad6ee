package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/rs/zerolog/log"
)

const DefaultTitle = "InfoTech Wizard"

const inputHeight = 3

type initializedMsg struct{}

type connectivityCheckedMsg struct{}

type queryFinishedMsg struct {
	Reply session.Message
}

type copiedMsg struct {
	err error
}

// Model is the full-screen chat view over a session.
//
// The session owns all conversation state. The model re-reads a snapshot whenever
// something may have changed and renders from it, so events arriving out of order
// on the bus cannot corrupt the view.
type Model struct {
	ctx     context.Context
	session *session.Session
	title   string

	state    session.State
	keys     keyMap
	styles   styles
	renderer *renderer

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model

	width  int
	height int
	status string

	copyToClipboard func(string) error
	initialize      bool
}

type ModelOption func(*Model)

func WithTitle(title string) ModelOption {
	return func(m *Model) {
		if strings.TrimSpace(title) != "" {
			m.title = title
		}
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(f func(string) error) ModelOption {
	return func(m *Model) {
		if f != nil {
			m.copyToClipboard = f
		}
	}
}

// WithoutInitialize skips the startup probe in Init, for callers that already ran it.
func WithoutInitialize() ModelOption {
	return func(m *Model) {
		m.initialize = false
	}
}

func NewModel(ctx context.Context, s *session.Session, options ...ModelOption) Model {
	ta := textarea.New()
	ta.Placeholder = "Describe your issue..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	st := defaultStyles()
	sp.Style = st.Thinking

	m := Model{
		ctx:             ctx,
		session:         s,
		title:           DefaultTitle,
		keys:            defaultKeyMap(),
		styles:          st,
		input:           ta,
		viewport:        viewport.New(80, 20),
		spinner:         sp,
		help:            help.New(),
		copyToClipboard: clipboard.WriteAll,
		initialize:      true,
	}
	for _, opt := range options {
		opt(&m)
	}
	m.renderer = newRenderer(st, m.viewport.Width)
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.spinner.Tick}
	if m.initialize {
		cmds = append(cmds, m.initializeCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) initializeCmd() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		s.Initialize(ctx)
		return initializedMsg{}
	}
}

func (m Model) recheckCmd() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		s.CheckConnectivity(ctx)
		return connectivityCheckedMsg{}
	}
}

func runQueryCmd(ctx context.Context, q *session.Query) tea.Cmd {
	return func() tea.Msg {
		return queryFinishedMsg{Reply: q.Run(ctx)}
	}
}

func (m Model) copyCmd(text string) tea.Cmd {
	write := m.copyToClipboard
	return func() tea.Msg {
		return copiedMsg{err: write(text)}
	}
}

// State is the last snapshot the model rendered from.
func (m Model) State() session.State {
	return m.state
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionEventMsg, initializedMsg, connectivityCheckedMsg, queryFinishedMsg:
		m.refresh()
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Str("component", "ui").Msg("failed to copy answer")
			m.status = "Copy failed"
		} else {
			m.status = "Copied last answer"
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		q := m.session.Begin(m.ctx, m.input.Value())
		if q == nil {
			return m, nil
		}
		m.input.Reset()
		m.refresh()
		return m, runQueryCmd(m.ctx, q)

	case key.Matches(msg, m.keys.Newline):
		m.input.InsertString("\n")
		m.session.SetDraft(m.input.Value())
		return m, nil

	case key.Matches(msg, m.keys.Recheck):
		return m, m.recheckCmd()

	case key.Matches(msg, m.keys.Copy):
		last, ok := m.state.LastAssistant()
		if !ok {
			return m, nil
		}
		return m, m.copyCmd(last.Content)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.session.SetDraft(after)
	}
	return m, cmd
}

// refresh re-reads the session and re-renders the transcript, scrolling to the
// newest message when the number of messages changed.
func (m *Model) refresh() {
	prev := len(m.state.Messages)
	atBottom := m.viewport.AtBottom()
	m.state = m.session.Snapshot()
	m.renderer.resize(m.viewport.Width)
	m.viewport.SetContent(m.renderer.transcript(m.state.Messages))
	if len(m.state.Messages) != prev || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.input.SetWidth(m.width - 2)
	m.help.Width = m.width

	chrome := lipgloss.Height(m.headerView()) +
		lipgloss.Height(m.statusView()) +
		inputHeight + 2 +
		lipgloss.Height(m.help.View(m.keys))
	h := m.height - chrome
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
}

func (m Model) headerView() string {
	style := m.styles.Checking
	switch m.state.Connectivity {
	case session.ConnectivityOnline:
		style = m.styles.Online
	case session.ConnectivityOffline:
		style = m.styles.Offline
	}
	indicator := style.Render("● " + connectivityLabel(m.state.Connectivity))
	title := m.styles.Title.Render(m.title)
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(indicator) - 2
	if gap < 1 {
		gap = 1
	}
	return m.styles.Header.Render(title + strings.Repeat(" ", gap) + indicator)
}

// statusView is the single line between transcript and input.
func (m Model) statusView() string {
	switch {
	case m.state.AwaitingReply:
		return m.spinner.View() + m.styles.Thinking.Render(" Thinking...")
	case m.state.LastError != "":
		return m.styles.ErrorBanner.Render("Error: " + m.state.LastError)
	case m.status != "":
		return m.styles.Status.Render(m.status)
	default:
		return ""
	}
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.styles.Input.Render(m.input.View()),
		m.help.View(m.keys),
	)
}
