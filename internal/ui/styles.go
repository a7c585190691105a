// Package ui renders terminal output for the mdsync commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	passStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Setup picks the color profile: plain text when stdout is not a terminal,
// NO_COLOR is set, or noColor is true.
func Setup(noColor bool) {
	if noColor || !IsTerminal(os.Stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// RenderAccent highlights informational markers.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass marks success.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn marks recoverable problems.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail marks errors.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderDim de-emphasizes secondary text.
func RenderDim(s string) string { return dimStyle.Render(s) }
