// ABOUTME: Bubbletea model for the zone controller TUI
// ABOUTME: Mirrors connection, session and binding state, drives playback keys
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
)

// Controller is the command surface the TUI drives. Implemented by the
// application.
type Controller interface {
	SendUpdateSession(update protocol.UpdateSession)
	SendSetSeek(seek protocol.SetSeek)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Faint(true)
)

const eventLogDepth = 8

// Model represents the TUI state
type Model struct {
	controller Controller

	connected    bool
	connectionID string
	wsURL        string

	session *protocol.Session
	target  *protocol.PlaybackTarget

	events []string

	width  int
	height int
}

// NewModel creates a TUI model bound to a controller
func NewModel(controller Controller) Model {
	return Model{controller: controller}
}

// ConnectedMsg updates the connection indicator
type ConnectedMsg struct {
	Connected    bool
	ConnectionID string
	WSURL        string
}

// SessionMsg replaces the displayed session snapshot
type SessionMsg struct {
	Session protocol.Session
	Target  *protocol.PlaybackTarget
}

// EventMsg appends one line to the event log
type EventMsg struct {
	Line string
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ConnectedMsg:
		m.connected = msg.Connected
		if msg.ConnectionID != "" {
			m.connectionID = msg.ConnectionID
		}
		if msg.WSURL != "" {
			m.wsURL = msg.WSURL
		}
	case SessionMsg:
		session := msg.Session
		m.session = &session
		if msg.Target != nil {
			m.target = msg.Target
		}
	case EventMsg:
		m.events = append(m.events, msg.Line)
		if len(m.events) > eventLogDepth {
			m.events = m.events[len(m.events)-eventLogDepth:]
		}
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ZoneSync") + "\n\n")
	b.WriteString(m.renderConnection())
	b.WriteString(m.renderSession())
	b.WriteString(m.renderEvents())
	b.WriteString(helpStyle.Render("space:Play/Pause  ←/→:Seek  ↑/↓:Volume  n/p:Track  q:Quit"))
	return b.String()
}

func (m Model) renderConnection() string {
	status := badStyle.Render("disconnected")
	if m.connected {
		status = okStyle.Render("connected")
	}
	s := fmt.Sprintf("%s %s", labelStyle.Render("Server:"), status)
	if m.connectionID != "" {
		s += fmt.Sprintf("  %s %s", labelStyle.Render("Connection:"), m.connectionID)
	}
	if m.wsURL != "" {
		s += fmt.Sprintf("  %s %s", labelStyle.Render("WS:"), m.wsURL)
	}
	return s + "\n\n"
}

func (m Model) renderSession() string {
	if m.session == nil {
		return labelStyle.Render("No active session") + "\n\n"
	}
	session := m.session

	state := "paused"
	if session.Playing {
		state = activeStyle.Render("playing")
	}
	s := fmt.Sprintf("%s %s (%s)\n", labelStyle.Render("Session:"), session.Name, state)

	position := 0
	if session.Position != nil {
		position = *session.Position
	}
	for i, track := range session.Playlist.Tracks {
		marker := "  "
		line := fmt.Sprintf("%s %d. %s — %s", marker, i+1, track.Title, track.Artist)
		if i == position {
			line = activeStyle.Render("▶ " + line[2:])
		}
		s += line + "\n"
	}

	if session.Seek != nil {
		s += fmt.Sprintf("%s %.0fs", labelStyle.Render("Seek:"), *session.Seek)
	}
	if session.Volume != nil {
		s += fmt.Sprintf("  %s %.0f%%", labelStyle.Render("Volume:"), *session.Volume*100)
	}
	return s + "\n\n"
}

func (m Model) renderEvents() string {
	if len(m.events) == 0 {
		return ""
	}
	s := labelStyle.Render("Events:") + "\n"
	for _, line := range m.events {
		s += helpStyle.Render("  "+line) + "\n"
	}
	return s + "\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		if m.session != nil && m.target != nil && m.controller != nil {
			playing := !m.session.Playing
			m.controller.SendUpdateSession(protocol.UpdateSession{
				SessionID: m.session.SessionID,
				Target:    *m.target,
				Playing:   &playing,
			})
		}
	case "left", "right":
		if m.session != nil && m.target != nil && m.controller != nil {
			seek := 0.0
			if m.session.Seek != nil {
				seek = *m.session.Seek
			}
			if msg.String() == "left" {
				seek -= 10
				if seek < 0 {
					seek = 0
				}
			} else {
				seek += 10
			}
			m.controller.SendSetSeek(protocol.SetSeek{
				SessionID: m.session.SessionID,
				Target:    *m.target,
				Seek:      seek,
			})
		}
	case "up", "down":
		if m.session != nil && m.target != nil && m.controller != nil {
			volume := 1.0
			if m.session.Volume != nil {
				volume = *m.session.Volume
			}
			if msg.String() == "up" {
				volume += 0.05
				if volume > 1 {
					volume = 1
				}
			} else {
				volume -= 0.05
				if volume < 0 {
					volume = 0
				}
			}
			m.controller.SendUpdateSession(protocol.UpdateSession{
				SessionID: m.session.SessionID,
				Target:    *m.target,
				Volume:    &volume,
			})
		}
	case "n", "p":
		if m.session != nil && m.target != nil && m.controller != nil {
			position := 0
			if m.session.Position != nil {
				position = *m.session.Position
			}
			if msg.String() == "n" {
				if position < len(m.session.Playlist.Tracks)-1 {
					position++
				}
			} else if position > 0 {
				position--
			}
			seek := 0.0
			m.controller.SendUpdateSession(protocol.UpdateSession{
				SessionID: m.session.SessionID,
				Target:    *m.target,
				Position:  &position,
				Seek:      &seek,
			})
		}
	}

	return m, nil
}
