// ABOUTME: TUI program construction and the app-to-TUI event bridge
// ABOUTME: Translates observer events into bubbletea messages
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
)

// Run starts the TUI program
func Run(controller Controller) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controller), tea.WithAltScreen())
	return p, nil
}

// ConnectEvent mirrors the app's connection announcement payload
type ConnectEvent interface {
	ConnectionIdentity() (connectionID, wsURL string)
}

// Bridge forwards application events into a running TUI program. Emit
// is fire-and-forget and safe before the program is attached.
type Bridge struct {
	program *tea.Program
}

// NewBridge creates an unattached event bridge
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach connects the bridge to a running program
func (b *Bridge) Attach(p *tea.Program) {
	b.program = p
}

// Emit translates one application event into a TUI message
func (b *Bridge) Emit(event string, payload any) {
	if b.program == nil {
		return
	}

	switch event {
	case "ws-connect":
		msg := ConnectedMsg{Connected: true}
		if evt, ok := payload.(ConnectEvent); ok {
			msg.ConnectionID, msg.WSURL = evt.ConnectionIdentity()
		}
		b.program.Send(msg)
	case "player-state":
		if session, ok := payload.(protocol.Session); ok {
			b.program.Send(SessionMsg{Session: session})
		}
	case "player-update":
		if update, ok := payload.(protocol.UpdateSession); ok {
			b.program.Send(EventMsg{Line: fmt.Sprintf("session %d updated", update.SessionID)})
		}
	case "ws-message":
		if msg, ok := payload.(protocol.Message); ok {
			b.program.Send(EventMsg{Line: msg.Type})
		}
	}
}
