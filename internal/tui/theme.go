// Package tui implements the live event tail over the HTTP API.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// Theme centralizes all styling for the tail TUI.
// Even with a single default theme, this keeps all colors in one place
// and makes future theme support trivial.
type Theme struct {
	// Per-category event colors
	System   lipgloss.Style
	Speech   lipgloss.Style
	Match    lipgloss.Style
	Dispatch lipgloss.Style
	OSC      lipgloss.Style
	Feedback lipgloss.Style
	Error    lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	StatusOK  lipgloss.Style
	StatusBad lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		System:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Speech:   lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		Match:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Dispatch: lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")),
		OSC:      lipgloss.NewStyle().Foreground(lipgloss.Color("#56B6C2")),
		Feedback: lipgloss.NewStyle().Foreground(lipgloss.Color("#C678DD")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		StatusOK:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusBad: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
	}
}

// CategoryStyle maps an event category to its color.
func (t Theme) CategoryStyle(c telemetry.Category) lipgloss.Style {
	switch c {
	case telemetry.CategorySystem:
		return t.System
	case telemetry.CategorySpeech:
		return t.Speech
	case telemetry.CategoryMatch:
		return t.Match
	case telemetry.CategoryDispatch:
		return t.Dispatch
	case telemetry.CategoryOSC:
		return t.OSC
	case telemetry.CategoryFeedback:
		return t.Feedback
	case telemetry.CategoryError:
		return t.Error
	}
	return t.Dim
}
