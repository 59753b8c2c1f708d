package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"tether/internal/client"
)

// BubbleTea message types produced by the client event pump

// clientEventMsg wraps one event from the client's event channel.
type clientEventMsg struct {
	Event client.Event
}

// sendDoneMsg signals that a SendMessage call resolved.
type sendDoneMsg struct {
	Err error
}

// cancelDoneMsg signals that a cancel request resolved.
type cancelDoneMsg struct {
	Err error
}

// confirmDoneMsg signals that a confirmation response was delivered.
type confirmDoneMsg struct {
	Err error
}

// waitForEvent blocks on the client's event channel and republishes the next
// event as a BubbleTea message. The Update loop re-issues it after each one.
func waitForEvent(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-c.Events()
		if !ok {
			return nil
		}
		return clientEventMsg{Event: ev}
	}
}
