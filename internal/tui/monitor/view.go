package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/models"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	header := m.renderHeader()

	// header, footer and an optional error line
	availableHeight := m.Height - 3
	if m.Err != nil {
		availableHeight--
	}
	queueHeight := availableHeight / 2
	rest := availableHeight - queueHeight
	conflictHeight := rest / 2
	historyHeight := rest - conflictHeight

	parts := []string{
		header,
		m.renderQueuePanel(queueHeight),
		m.renderConflictsPanel(conflictHeight),
		m.renderHistoryPanel(historyHeight),
	}
	if m.Err != nil {
		parts = append(parts, errorTextStyle.Render(" Error: "+m.Err.Error()))
	}
	parts = append(parts, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder

	s.WriteString("offsync monitor (resize for full view)\n\n")
	s.WriteString(m.connectivity() + "\n")
	s.WriteString(fmt.Sprintf("Pending: %d | Failing: %d | Conflicts: %d\n",
		m.Status.PendingCount, m.Status.FailedCount, len(m.Conflicts)))
	s.WriteString("\nq:quit r:refresh ?:help")

	return s.String()
}

func (m Model) connectivity() string {
	if m.Status.IsOnline {
		return onlineStyle.Render("● ONLINE")
	}
	return offlineStyle.Render("○ OFFLINE")
}

// renderHeader shows connectivity, counts and the last drain
func (m Model) renderHeader() string {
	parts := []string{
		m.connectivity(),
		titleStyle.Render(fmt.Sprintf("tenant %s", m.Status.Tenant)),
		fmt.Sprintf("pending %d", m.Status.PendingCount),
	}
	if m.Status.FailedCount > 0 {
		parts = append(parts, syncingStyle.Render(fmt.Sprintf("failing %d", m.Status.FailedCount)))
	}
	if m.Status.IsSyncing || m.Syncing {
		parts = append(parts, syncingStyle.Render("⟳ syncing"))
	}
	if m.Status.LastSyncTime != nil {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("last sync %s (%d ok, %d failed)",
			m.Status.LastSyncTime.Local().Format("15:04:05"), m.Status.LastSuccessful, m.Status.LastFailed)))
	}
	if m.LastResult != "" {
		parts = append(parts, subtleStyle.Render(m.LastResult))
	}
	return ansi.Truncate(" "+strings.Join(parts, "  "), m.Width, "…")
}

// renderQueuePanel lists pending mutations in drain order
func (m Model) renderQueuePanel(height int) string {
	var content strings.Builder

	if m.Filtering || m.Filter.Value() != "" {
		content.WriteString(m.Filter.View())
		content.WriteString("\n")
		height--
	}

	recs := m.visiblePending()
	if len(recs) == 0 {
		content.WriteString(subtleStyle.Render("Queue is empty"))
	} else {
		offset := m.ScrollOffset[PanelQueue]
		visible := m.visibleItems(len(recs), offset, height-3)
		for i := offset; i < offset+visible; i++ {
			content.WriteString(m.formatMutationRow(recs[i], m.ActivePanel == PanelQueue && i == offset))
			content.WriteString("\n")
		}
	}

	title := fmt.Sprintf("QUEUE (%d)", len(recs))
	return m.wrapPanel(title, content.String(), height, PanelQueue)
}

// renderConflictsPanel lists unresolved conflicts
func (m Model) renderConflictsPanel(height int) string {
	var content strings.Builder

	if len(m.Conflicts) == 0 {
		content.WriteString(subtleStyle.Render("No open conflicts"))
	} else {
		offset := m.ScrollOffset[PanelConflicts]
		visible := m.visibleItems(len(m.Conflicts), offset, height-3)
		for i := offset; i < offset+visible; i++ {
			c := m.Conflicts[i]
			line := fmt.Sprintf("%s  %s/%s  %s  %s",
				titleStyle.Render(c.ID), c.ResourceType, c.Action,
				subtleStyle.Render(c.MutationID),
				timestampStyle.Render(c.CreatedAt.Local().Format("01-02 15:04")))
			if m.ActivePanel == PanelConflicts && i == offset {
				line = selectedRowStyle.Render("> ") + line
			}
			content.WriteString(line)
			content.WriteString("\n")
		}
	}

	title := fmt.Sprintf("CONFLICTS (%d)", len(m.Conflicts))
	return m.wrapPanel(title, content.String(), height, PanelConflicts)
}

// renderHistoryPanel shows recent per-mutation outcomes, newest first
func (m Model) renderHistoryPanel(height int) string {
	var content strings.Builder

	if len(m.History) == 0 {
		content.WriteString(subtleStyle.Render("No sync history"))
	} else {
		offset := m.ScrollOffset[PanelHistory]
		visible := m.visibleItems(len(m.History), offset, height-3)
		for i := offset; i < offset+visible; i++ {
			content.WriteString(m.formatHistoryItem(m.History[i]))
			content.WriteString("\n")
		}
	}

	return m.wrapPanel("HISTORY", content.String(), height, PanelHistory)
}

func (m Model) formatMutationRow(r *models.MutationRecord, selected bool) string {
	line := fmt.Sprintf("%-6s %s/%s  %s  %d/%d",
		formatPriority(r.Priority), r.ResourceType, r.Action,
		subtleStyle.Render(r.ID), r.RetryCount, r.MaxRetries)
	if r.LastError != "" {
		line += "  " + errorTextStyle.Render(r.LastError)
	}
	if selected {
		return selectedRowStyle.Render("> ") + line
	}
	return line
}

func (m Model) formatHistoryItem(h models.SyncHistoryEntry) string {
	line := fmt.Sprintf("%s %s %s/%s %s",
		timestampStyle.Render(h.Timestamp.Local().Format("15:04:05")),
		formatOutcome(h.Outcome),
		h.ResourceType, h.Action,
		subtleStyle.Render(h.MutationID))
	if h.Strategy != "" {
		line += subtleStyle.Render(" (" + h.Strategy + ")")
	}
	if h.Error != "" {
		line += " " + errorTextStyle.Render(h.Error)
	}
	return line
}

// renderFooter renders key hints, alerts and the refresh time
func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit  tab:switch  ↑↓:scroll  /:filter  s:sync  r:refresh  ?:help")

	conflictAlert := ""
	if n := len(m.Conflicts); n > 0 {
		conflictAlert = conflictAlertStyle.Render(fmt.Sprintf(" [%d CONFLICT] ", n))
	}

	refresh := timestampStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(conflictAlert) - lipgloss.Width(refresh) - 2
	if padding < 0 {
		padding = 0
	}

	return fmt.Sprintf(" %s%s%s%s", keys, strings.Repeat(" ", padding), conflictAlert, refresh)
}

// renderHelp renders the key binding reference
func (m Model) renderHelp() string {
	help := `
MONITOR TUI - Key Bindings

NAVIGATION:
  Tab / Shift+Tab   Switch between panels
  1 / 2 / 3         Jump to queue / conflicts / history
  ↑ / ↓ / j / k     Scroll active panel

QUEUE:
  /                 Filter by id, resource type or action
  Enter / Esc       Apply / clear filter

ACTIONS:
  s                 Sync now
  r                 Force refresh
  q / Ctrl+C        Quit

Press ? to close help
`
	return helpStyle.Render(help)
}

// wrapPanel frames content with a title and fixed height
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	titleStr := panelTitleStyle.Render(title)
	contentWidth := m.Width - 4 // border and padding

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	contentHeight := height - 3 // title + border
	if contentHeight < 1 {
		contentHeight = 1
	}
	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}

	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, titleStr, strings.Join(lines, "\n"))
	return style.Width(m.Width - 2).Render(inner)
}

// visibleItems returns how many rows fit from offset
func (m Model) visibleItems(total, offset, height int) int {
	if height < 1 {
		height = 1
	}
	remaining := total - offset
	if remaining > height {
		return height
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

func formatResult(r engine.Result) string {
	s := fmt.Sprintf("synced %d/%d", r.Successful, r.Attempted)
	if r.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Failed)
	}
	if r.Conflicts > 0 {
		s += fmt.Sprintf(", %d conflicts", r.Conflicts)
	}
	return s
}
