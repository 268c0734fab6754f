package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/offsync/internal/models"
)

var (
	// Base colors
	primaryColor   = lipgloss.Color("212")
	secondaryColor = lipgloss.Color("141")
	mutedColor     = lipgloss.Color("241")
	successColor   = lipgloss.Color("42")
	warningColor   = lipgloss.Color("214")
	errorColor     = lipgloss.Color("196")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle       = lipgloss.NewStyle().Bold(true)
	subtleStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle        = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorTextStyle   = lipgloss.NewStyle().Foreground(errorColor)
	selectedRowStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	onlineStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	syncingStyle = lipgloss.NewStyle().Foreground(warningColor)

	conflictAlertStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(secondaryColor)

	// Priority styles
	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.PriorityLow:    lipgloss.NewStyle().Foreground(mutedColor),
	}

	outcomeStyles = map[models.SyncOutcome]lipgloss.Style{
		models.OutcomeSynced:    lipgloss.NewStyle().Foreground(successColor),
		models.OutcomeConflict:  lipgloss.NewStyle().Foreground(secondaryColor),
		models.OutcomeRetry:     lipgloss.NewStyle().Foreground(warningColor),
		models.OutcomeAbandoned: lipgloss.NewStyle().Foreground(errorColor),
		models.OutcomeExpired:   lipgloss.NewStyle().Foreground(mutedColor),
	}
)

// formatPriority renders a priority with color
func formatPriority(p models.Priority) string {
	style, ok := priorityStyles[p]
	if !ok {
		return string(p)
	}
	return style.Render(string(p))
}

// formatOutcome renders a history outcome badge
func formatOutcome(o models.SyncOutcome) string {
	label := map[models.SyncOutcome]string{
		models.OutcomeSynced:    "[OK ]",
		models.OutcomeConflict:  "[CON]",
		models.OutcomeRetry:     "[RTY]",
		models.OutcomeAbandoned: "[ABN]",
		models.OutcomeExpired:   "[EXP]",
	}[o]
	if label == "" {
		return subtleStyle.Render("[???]")
	}
	return outcomeStyles[o].Render(label)
}
