// Package tui renders a chat session in the terminal with bubbletea.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/ooye-live/chat"
)

// Placeholder is shown in the empty chat input.
const Placeholder = "Say Hi 👋🏼 to chat"

// Run drives s in a full-screen program until the user quits or ctx ends.
func Run(ctx context.Context, s *chat.Session) error {
	model := NewModel(s)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type entryMsg chat.Entry

type reactionMsg chat.ReactionState

// streamEndMsg arrives once the session has ended.
type streamEndMsg struct{}

// entriesLaggedMsg and reactionsLaggedMsg arrive when the session dropped a subscription
// because the model fell behind; the session itself is still live.
type (
	entriesLaggedMsg   struct{}
	reactionsLaggedMsg struct{}
)

// Model is the chat widget: log viewport, reaction row and input line.
type Model struct {
	session   *chat.Session
	entries   *chat.Subscription[chat.Entry]
	reactSub  *chat.Subscription[chat.ReactionState]
	log       []chat.Entry
	reactions []chat.ReactionState
	viewport  viewport.Model
	input     textinput.Model
	width     int
	height    int
	status    string
	ended     bool
}

// NewModel subscribes to s. Call Close when done.
func NewModel(s *chat.Session) *Model {
	backlog, sub := s.Subscribe()

	input := textinput.New()
	input.Placeholder = Placeholder
	input.Prompt = "› "
	input.CharLimit = 500
	input.Focus()

	m := &Model{
		session:   s,
		entries:   sub,
		reactSub:  s.SubscribeReactions(),
		log:       backlog,
		reactions: s.Reactions.States(),
		viewport:  viewport.New(80, 20),
		input:     input,
		width:     80,
		height:    24,
	}
	m.refresh()
	return m
}

// Close drops the subscriptions.
func (m *Model) Close() {
	m.entries.Close()
	m.reactSub.Close()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitEntry(), m.waitReaction())
}

func (m *Model) waitEntry() tea.Cmd {
	sub := m.entries
	return func() tea.Msg {
		e, ok := <-sub.C
		if !ok {
			if sub.Lagged() {
				return entriesLaggedMsg{}
			}
			return streamEndMsg{}
		}
		return entryMsg(e)
	}
}

func (m *Model) waitReaction() tea.Cmd {
	sub := m.reactSub
	return func() tea.Msg {
		st, ok := <-sub.C
		if !ok {
			if sub.Lagged() {
				return reactionsLaggedMsg{}
			}
			return nil
		}
		return reactionMsg(st)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case entryMsg:
		m.log = append(m.log, chat.Entry(msg))
		m.refresh()
		return m, m.waitEntry()
	case reactionMsg:
		st := chat.ReactionState(msg)
		if st.Index >= 0 && st.Index < len(m.reactions) {
			m.reactions[st.Index] = st
		}
		return m, m.waitReaction()
	case entriesLaggedMsg:
		if m.session.Closed() {
			return m.Update(streamEndMsg{})
		}
		// m.log holds seqs 0..len-1, so resume right after the last one shown.
		m.entries.Close()
		var missed []chat.Entry
		missed, m.entries = m.session.SubscribeFrom(len(m.log))
		m.log = append(m.log, missed...)
		m.refresh()
		return m, m.waitEntry()
	case reactionsLaggedMsg:
		if m.session.Closed() {
			return m, nil
		}
		m.reactSub.Close()
		m.reactSub = m.session.SubscribeReactions()
		m.reactions = m.session.Reactions.States()
		return m, m.waitReaction()
	case streamEndMsg:
		m.ended = true
		m.status = "stream ended"
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if i, ok := reactionKey(key, m.input.Focused()); ok {
		m.react(i)
		return m, nil
	}

	if !m.input.Focused() {
		switch key {
		case "q":
			return m, tea.Quit
		case "enter", "tab", "i":
			if m.ended {
				return m, nil
			}
			return m, m.input.Focus()
		case "up", "down", "pgup", "pgdown", "home", "end":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch key {
	case "esc", "tab":
		m.input.Blur()
		return m, nil
	case "enter":
		m.submit()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.session.SetInput(m.input.Value())
	return m, cmd
}

// reactionKey maps 1-5 (input blurred) or F1-F5 (typing) to a button index.
func reactionKey(key string, typing bool) (int, bool) {
	if typing {
		if len(key) == 2 && key[0] == 'f' && key[1] >= '1' && key[1] <= '9' {
			return int(key[1] - '1'), true
		}
		return 0, false
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		return int(key[0] - '1'), true
	}
	return 0, false
}

func (m *Model) react(i int) {
	st, err := m.session.React(i)
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ""
	if st.Index < len(m.reactions) {
		m.reactions[st.Index] = st
	}
}

func (m *Model) submit() {
	m.session.SetInput(m.input.Value())
	if _, err := m.session.SubmitInput(); err != nil {
		if errors.Is(err, chat.ErrBlankMessage) {
			m.status = "type something first"
		} else {
			m.status = err.Error()
		}
		return
	}
	m.status = ""
	m.input.Reset()
}

func (m *Model) resize() {
	m.viewport.Width = m.width
	// header, reaction row, input and status lines
	m.viewport.Height = max(m.height-4, 1)
	m.input.Width = max(m.width-4, 10)
	m.refresh()
}

func (m *Model) refresh() {
	viewer := m.session.Composer.Viewer().Username
	lines := make([]string, len(m.log))
	for i, e := range m.log {
		lines[i] = renderEntry(e, viewer)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.viewport.View(),
		renderReactions(m.reactions),
		m.input.View(),
		statusStyle.Render(m.status),
	)
}

func (m *Model) header() string {
	st := m.session.Replay()
	label := liveStyle.Render("● LIVE")
	if st.Done {
		label = doneStyle.Render("■ ENDED")
	}
	return label + " " + statusStyle.Render(progress(st))
}
