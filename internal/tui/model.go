// Package tui renders the chat shell: a transcript of streamed turns, the
// session line, and an input box wired to the client.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"tether/internal/client"
	"tether/internal/link"
	"tether/internal/stream"
	"tether/pkg/protocol"
)

// chatEntry is one finished line of the transcript.
type chatEntry struct {
	role    string
	content string
	tools   []stream.ToolCallRecord
}

// Model is the root BubbleTea model.
type Model struct {
	client *client.Client
	styles Styles
	model  string

	viewport viewport.Model
	input    textarea.Model

	entries []chatEntry
	turn    *stream.Turn

	state        link.State
	sessions     []protocol.Session
	activeID     string
	tokenTotal   int
	editorOK     bool
	project      string
	confirmation *protocol.ConfirmationRequest
	lastErr      error

	width    int
	height   int
	busy     bool
	quitting bool
}

// NewModel creates the root TUI model.
func NewModel(c *client.Client, model string) Model {
	styles := DefaultStyles()

	ti := textarea.New()
	ti.Placeholder = "Ask about your scene... (Enter to send, Esc to cancel a running turn)"
	ti.ShowLineNumbers = false
	ti.SetHeight(3)
	ti.SetWidth(80)
	ti.Focus()
	ti.CharLimit = 4000

	vp := viewport.New(80, 20)

	return Model{
		client:   c,
		styles:   styles,
		model:    model,
		viewport: vp,
		input:    ti,
		state:    link.StateConnecting,
	}
}

// Init starts the event pump.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.client)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.refreshViewport()

	case tea.KeyMsg:
		cmd, handled := m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		if m.quitting {
			return m, tea.Quit
		}
		if handled {
			return m, tea.Batch(cmds...)
		}

	case clientEventMsg:
		m.applyEvent(msg.Event)
		cmds = append(cmds, waitForEvent(m.client))

	case sendDoneMsg:
		m.busy = false
		if msg.Err != nil {
			m.lastErr = msg.Err
			m.appendSystem(fmt.Sprintf("send failed: %v", msg.Err))
		}

	case cancelDoneMsg:
		if msg.Err != nil {
			m.appendSystem(fmt.Sprintf("cancel failed: %v", msg.Err))
		}

	case confirmDoneMsg:
		if msg.Err != nil {
			m.appendSystem(fmt.Sprintf("confirmation failed: %v", msg.Err))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey returns (cmd, handled); handled keys are not passed to the input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return nil, true

	case "esc":
		if m.busy {
			c := m.client
			return func() tea.Msg {
				return cancelDoneMsg{Err: c.CancelTurn(context.Background())}
			}, true
		}
		return nil, false

	case "y", "n":
		if m.confirmation != nil {
			req := *m.confirmation
			m.confirmation = nil
			approved := msg.String() == "y"
			c := m.client
			m.appendSystem(fmt.Sprintf("%s: %s", req.ActionType, map[bool]string{true: "approved", false: "denied"}[approved]))
			return func() tea.Msg {
				return confirmDoneMsg{Err: c.RespondConfirmation(context.Background(), req.ConfirmationID, approved, "")}
			}, true
		}
		return nil, false

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.busy || m.state != link.StateOpen {
			return nil, true
		}
		m.input.Reset()
		m.busy = true
		m.lastErr = nil
		m.entries = append(m.entries, chatEntry{role: "user", content: text})
		m.refreshViewport()
		c, model := m.client, m.model
		return func() tea.Msg {
			return sendDoneMsg{Err: c.SendMessage(context.Background(), text, model)}
		}, true
	}
	return nil, false
}

func (m *Model) applyEvent(ev client.Event) {
	switch ev := ev.(type) {
	case client.StateEvent:
		m.state = ev.State

	case client.TurnUpdateEvent:
		turn := ev.Turn
		m.turn = &turn

	case client.TurnCompleteEvent:
		m.turn = nil
		m.entries = append(m.entries, chatEntry{
			role:    ev.Message.Role,
			content: ev.Message.Content,
			tools:   ev.Message.ToolCalls,
		})

	case client.TurnDiscardedEvent:
		m.turn = nil
		if ev.Cancelled {
			m.appendSystem("turn cancelled")
		} else {
			m.appendSystem("connection lost, turn discarded")
		}

	case client.SessionsEvent:
		m.sessions = ev.Sessions
		m.activeID = ev.ActiveID

	case client.TokenUsageEvent:
		m.tokenTotal = ev.Total

	case client.EditorStateEvent:
		m.editorOK = ev.Connected
		m.project = ""
		if ev.Project != nil {
			m.project = ev.Project.Name
		}

	case client.ConfirmationEvent:
		req := ev.Request
		m.confirmation = &req
	}
	m.refreshViewport()
}

func (m *Model) appendSystem(line string) {
	m.entries = append(m.entries, chatEntry{role: "system", content: line})
	m.refreshViewport()
}

func (m *Model) updateLayout() {
	inputHeight := 4 // textarea plus border
	statusHeight := 1
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-inputHeight-statusHeight, 1)
	m.input.SetWidth(m.width)
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript() string {
	var b strings.Builder
	for _, e := range m.entries {
		b.WriteString(m.renderEntry(e))
		b.WriteString("\n")
	}
	if m.turn != nil {
		b.WriteString(m.renderTurn(*m.turn))
		b.WriteString("\n")
	}
	if m.confirmation != nil {
		b.WriteString(m.styles.ConfirmPrompt.Render(fmt.Sprintf(
			"%s: %s  [y]es / [n]o",
			m.confirmation.ActionType, m.confirmation.Description)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderEntry(e chatEntry) string {
	var b strings.Builder
	switch e.role {
	case "user":
		b.WriteString(m.styles.UserLabel.Render("You"))
	case "system":
		return m.styles.SystemLine.Render(e.content)
	default:
		b.WriteString(m.styles.AssistantLabel.Render("Assistant"))
	}
	b.WriteString("\n")
	for _, tool := range e.tools {
		b.WriteString(m.renderTool(tool))
		b.WriteString("\n")
	}
	b.WriteString(e.content)
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderTurn(turn stream.Turn) string {
	var b strings.Builder
	b.WriteString(m.styles.AssistantLabel.Render("Assistant"))
	b.WriteString("\n")
	if turn.ReasoningActive {
		b.WriteString(m.styles.Reasoning.Render("thinking..."))
		b.WriteString("\n")
	}
	for _, step := range turn.Reasoning {
		b.WriteString(m.styles.Reasoning.Render("• " + step))
		b.WriteString("\n")
	}
	for _, tool := range turn.ToolCalls {
		b.WriteString(m.renderTool(tool))
		b.WriteString("\n")
	}
	if turn.Content == "" && !turn.ReasoningActive && len(turn.ToolCalls) == 0 {
		b.WriteString(m.styles.Muted.Render("..."))
	} else {
		b.WriteString(turn.Content)
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderTool(tool stream.ToolCallRecord) string {
	switch tool.Status {
	case stream.ToolRunning:
		return m.styles.ToolRunning.Render(fmt.Sprintf("⚙ %s ...", tool.Name))
	case stream.ToolFailed:
		return m.styles.ToolError.Render(fmt.Sprintf("✗ %s: %s", tool.Name, tool.Error))
	default:
		return m.styles.ToolComplete.Render(fmt.Sprintf("✓ %s", tool.Name))
	}
}

// View renders the full screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return strings.Join([]string{
		m.viewport.View(),
		m.styles.InputStyle.Render(m.input.View()),
		m.renderStatusBar(),
	}, "\n")
}

func (m Model) renderStatusBar() string {
	var conn string
	switch m.state {
	case link.StateOpen:
		conn = m.styles.StatusConnected.Render("● connected")
	case link.StateConnecting:
		conn = m.styles.StatusReconnecting.Render("● connecting")
	default:
		conn = m.styles.StatusDisconnected.Render("● closed")
	}

	editor := m.styles.Muted.Render("editor: detached")
	if m.editorOK {
		label := "editor: attached"
		if m.project != "" {
			label = "editor: " + m.project
		}
		editor = m.styles.StatusConnected.Render(label)
	}

	session := "no session"
	for _, s := range m.sessions {
		if s.ID == m.activeID {
			session = s.Title
			break
		}
	}

	parts := []string{conn, editor, m.styles.Bold.Render(session)}
	if m.tokenTotal > 0 {
		parts = append(parts, m.styles.Muted.Render(fmt.Sprintf("%d tokens", m.tokenTotal)))
	}
	return m.styles.StatusBar.Width(max(m.width, 1)).Render(strings.Join(parts, "  "))
}
