package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/ooye-live/chat"
)

var (
	senderColor = lipgloss.Color("111")
	viewerColor = lipgloss.Color("216")
	memberColor = lipgloss.Color("157")
	activeBg    = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("242")
	liveColor   = lipgloss.Color("203")
	senderStyle = lipgloss.NewStyle().Bold(true).Foreground(senderColor)
	viewerStyle = lipgloss.NewStyle().Bold(true).Foreground(viewerColor).Underline(true)
	memberStyle = lipgloss.NewStyle().Italic(true).Foreground(memberColor)
	activeStyle = lipgloss.NewStyle().Background(activeBg).Padding(0, 1)
	idleStyle   = lipgloss.NewStyle().Padding(0, 1)
	keyStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	statusStyle = lipgloss.NewStyle().Foreground(mutedColor)
	liveStyle   = lipgloss.NewStyle().Bold(true).Foreground(liveColor)
	doneStyle   = lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
)

// renderEntry formats one log line. New members get the 🎉 prefix and the viewer's own
// messages are highlighted.
func renderEntry(e chat.Entry, viewer string) string {
	rec := e.Record
	name := senderStyle.Render(rec.Sender.Username)
	if e.Source == chat.SourceViewer || (viewer != "" && rec.Sender.Username == viewer) {
		name = viewerStyle.Render(rec.Sender.Username)
	}
	if rec.IsNewMember() {
		return chat.NewMemberPrefix + " " + name + " " + memberStyle.Render(rec.Message)
	}
	return name + ": " + rec.Message
}

func renderReactions(states []chat.ReactionState) string {
	cells := make([]string, len(states))
	for i, st := range states {
		cell := keyStyle.Render(fmt.Sprintf("%d", i+1)) + " " + st.Icon
		if st.Active {
			cells[i] = activeStyle.Render(cell)
		} else {
			cells[i] = idleStyle.Render(cell)
		}
	}
	return strings.Join(cells, " ")
}

func progress(st chat.ReplayStatus) string {
	s := fmt.Sprintf("%d/%d", st.Replayed, st.Total)
	if st.Error != "" {
		s += " (halted)"
	}
	return s
}
