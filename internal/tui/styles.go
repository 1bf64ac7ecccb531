// Package tui renders the work tree, guardrail trails and loop outcomes for
// the terminal, and asks the human to confirm past a Block.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/work"
)

var (
	colorComplete   = lipgloss.Color("46")
	colorInProgress = lipgloss.Color("51")
	colorWarn       = lipgloss.Color("226")
	colorFailed     = lipgloss.Color("196")
	colorDim        = lipgloss.Color("245")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	stateStyles = map[work.State]lipgloss.Style{
		work.StatePending:    lipgloss.NewStyle().Foreground(colorDim),
		work.StateInProgress: lipgloss.NewStyle().Foreground(colorInProgress),
		work.StateComplete:   lipgloss.NewStyle().Foreground(colorComplete).Bold(true),
		work.StateFailed:     lipgloss.NewStyle().Foreground(colorFailed).Bold(true),
	}

	outcomeStyles = map[guardrail.Outcome]lipgloss.Style{
		guardrail.OutcomePass:  lipgloss.NewStyle().Foreground(colorComplete),
		guardrail.OutcomeWarn:  lipgloss.NewStyle().Foreground(colorWarn).Bold(true),
		guardrail.OutcomeBlock: lipgloss.NewStyle().Foreground(colorFailed).Bold(true),
	}

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// StateIcon returns the marker drawn next to a node in the given state.
func StateIcon(s work.State) string {
	switch s {
	case work.StateComplete:
		return "✓"
	case work.StateInProgress:
		return "◐"
	case work.StateFailed:
		return "✗"
	default:
		return "○"
	}
}

// FormatState renders a state name in its colour.
func FormatState(s work.State) string {
	return stateStyles[s].Render(s.String())
}

// FormatOutcome renders a guardrail outcome in its colour.
func FormatOutcome(o guardrail.Outcome) string {
	style, ok := outcomeStyles[o]
	if !ok {
		return o.String()
	}
	return style.Render(o.String())
}
