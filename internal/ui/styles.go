package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds all the styling for terminal output
type Styles struct {
	Header  lipgloss.Style
	Pass    lipgloss.Style
	Fail    lipgloss.Style
	Pending lipgloss.Style
	Muted   lipgloss.Style
	Footer  lipgloss.Style

	ErrorBox   lipgloss.Style
	SuccessBox lipgloss.Style
}

// NewStyles creates a new styles instance
func NewStyles() *Styles {
	return &Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 2).
			MarginBottom(1),

		Pass: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575")),

		Fail: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5F87")),

		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")),

		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")),

		Footer: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1),

		ErrorBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF5F87")).
			Foreground(lipgloss.Color("#FF5F87")).
			Padding(0, 2),

		SuccessBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#04B575")).
			Foreground(lipgloss.Color("#04B575")).
			Padding(0, 2),
	}
}

// Status renders PASS or FAIL in the matching color.
func (s *Styles) Status(pass bool) string {
	if pass {
		return s.Pass.Render("PASS")
	}
	return s.Fail.Render("FAIL")
}
