package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/helpdesk/pkg/events"
	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/rs/zerolog/log"
)

// SessionEventMsg carries a session event into the bubbletea program.
type SessionEventMsg struct {
	Event session.Event
}

// ForwardFunc forwards session events from the bus into the program `p`.
// Events of other sessions sharing the bus are dropped.
func ForwardFunc(p *tea.Program, sessionID string) events.HandlerFunc {
	return func(_ context.Context, ev session.Event) error {
		if sessionID != "" && ev.SessionID != sessionID {
			return nil
		}
		log.Trace().Str("component", "ui").Str("event", string(ev.Type)).Msg("dispatching event to UI")
		p.Send(SessionEventMsg{Event: ev})
		return nil
	}
}
