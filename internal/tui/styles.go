package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the TUI styling definitions
type Styles struct {
	// Chat transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLine     lipgloss.Style
	Reasoning      lipgloss.Style

	// Tool activity
	ToolRunning  lipgloss.Style
	ToolComplete lipgloss.Style
	ToolError    lipgloss.Style

	// Status bar
	StatusBar          lipgloss.Style
	StatusConnected    lipgloss.Style
	StatusDisconnected lipgloss.Style
	StatusReconnecting lipgloss.Style

	// Confirmation prompt
	ConfirmPrompt lipgloss.Style

	// Input
	InputStyle lipgloss.Style

	// General
	Muted lipgloss.Style
	Bold  lipgloss.Style
}

// DefaultStyles creates the default style set.
func DefaultStyles() Styles {
	r := lipgloss.DefaultRenderer()
	return Styles{
		UserLabel: r.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true),
		AssistantLabel: r.NewStyle().
			Foreground(lipgloss.Color("213")).
			Bold(true),
		SystemLine: r.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
		Reasoning: r.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true),

		ToolRunning: r.NewStyle().
			Foreground(lipgloss.Color("81")),
		ToolComplete: r.NewStyle().
			Foreground(lipgloss.Color("76")),
		ToolError: r.NewStyle().
			Foreground(lipgloss.Color("196")),

		StatusBar: r.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		StatusConnected: r.NewStyle().
			Foreground(lipgloss.Color("76")).
			Bold(true),
		StatusDisconnected: r.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		StatusReconnecting: r.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),

		ConfirmPrompt: r.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),

		InputStyle: r.NewStyle().
			BorderTop(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("238")),

		Muted: r.NewStyle().
			Foreground(lipgloss.Color("245")),
		Bold: r.NewStyle().
			Bold(true),
	}
}
