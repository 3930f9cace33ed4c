package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/uptask/internal/session"
)

// sessionStateMsg reports that the session store changed state.
type sessionStateMsg struct {
	state session.State
}

// watchSession subscribes to s and returns a channel of state changes.
// The channel holds at most one pending change: the receiver always
// re-reads the current state, so a dropped intermediate state is harmless.
func watchSession(s *session.Store) (<-chan session.State, func()) {
	ch := make(chan session.State, 1)
	unsubscribe := s.Subscribe(func(state session.State) {
		select {
		case ch <- state:
		default:
		}
	})
	return ch, unsubscribe
}

// waitForState blocks until the next state change arrives on ch.
func waitForState(ch <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return nil
		}
		return sessionStateMsg{state: state}
	}
}
