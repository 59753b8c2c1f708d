package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"tether/internal/client"
)

// Run starts the chat shell against an already-running client. model
// overrides the runtime's default model for every turn when non-empty.
func Run(c *client.Client, model string) error {
	p := tea.NewProgram(
		NewModel(c, model),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
