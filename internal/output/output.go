// Package output provides styled terminal output helpers (success, error,
// warning, queue and conflict formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/offsync/internal/models"
)

var (
	// Styles
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityStyle = map[models.Priority]lipgloss.Style{
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	outcomeStyles = map[models.SyncOutcome]lipgloss.Style{
		models.OutcomeSynced:    successStyle,
		models.OutcomeConflict:  lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		models.OutcomeRetry:     warningStyle,
		models.OutcomeAbandoned: errorStyle,
		models.OutcomeExpired:   subtleStyle,
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeOffline       = "offline"
	ErrCodeSyncBusy      = "sync_in_progress"
	ErrCodeAlreadyClosed = "already_resolved"
	ErrCodeDatabaseError = "database_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	JSONErrorWithDetails(code, message, nil)
}

// JSONErrorWithDetails outputs an error as JSON with additional context
func JSONErrorWithDetails(code, message string, details map[string]interface{}) {
	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		errObj["details"] = details
	}
	data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
	fmt.Println(string(data))
}

// FormatPriority formats a priority with color
func FormatPriority(p models.Priority) string {
	style, ok := priorityStyle[p]
	if !ok {
		return fmt.Sprintf("[%s]", p)
	}
	return style.Render(fmt.Sprintf("[%s]", p))
}

// FormatOutcome formats a history outcome with color
func FormatOutcome(o models.SyncOutcome) string {
	style, ok := outcomeStyles[o]
	if !ok {
		return string(o)
	}
	return style.Render(string(o))
}

// FormatRetries returns "2/3" style retry progress
func FormatRetries(rec *models.MutationRecord) string {
	s := fmt.Sprintf("%d/%d", rec.RetryCount, rec.MaxRetries)
	if rec.RetryCount > 0 {
		return warningStyle.Render(s)
	}
	return subtleStyle.Render(s)
}

// FormatMutationShort formats a queued mutation on one line, truncated to width
// (0 = no limit).
func FormatMutationShort(rec *models.MutationRecord, width int) string {
	parts := []string{
		titleStyle.Render(rec.ID),
		FormatPriority(rec.Priority),
		fmt.Sprintf("%s/%s", rec.ResourceType, rec.Action),
		FormatRetries(rec),
		subtleStyle.Render(FormatTimeAgo(rec.CreatedAt)),
	}
	if rec.LastError != "" {
		parts = append(parts, errorStyle.Render(rec.LastError))
	}
	return Truncate(strings.Join(parts, "  "), width)
}

// FormatMutationLong formats a mutation with its payload
func FormatMutationLong(rec *models.MutationRecord) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(rec.ID))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Resource: %s | Action: %s | Priority: %s\n", rec.ResourceType, rec.Action, FormatPriority(rec.Priority)))
	sb.WriteString(fmt.Sprintf("Tenant: %s | Retries: %s | Queued: %s\n", rec.Tenant, FormatRetries(rec), rec.CreatedAt.Local().Format(time.DateTime)))
	if rec.LastError != "" {
		sb.WriteString(fmt.Sprintf("Last error: %s\n", errorStyle.Render(rec.LastError)))
	}
	sb.WriteString("\n")
	sb.WriteString(subtleStyle.Render("Payload:"))
	sb.WriteString("\n")
	sb.WriteString(PrettyJSON(rec.Payload))
	sb.WriteString("\n")
	return sb.String()
}

// FormatConflictShort formats a conflict on one line
func FormatConflictShort(c *models.ConflictRecord) string {
	state := warningStyle.Render("[open]")
	if c.Resolved {
		state = subtleStyle.Render(fmt.Sprintf("[kept %s]", c.Resolution))
	}
	parts := []string{
		titleStyle.Render(c.ID),
		fmt.Sprintf("%s/%s", c.ResourceType, c.Action),
		subtleStyle.Render(c.MutationID),
		state,
		subtleStyle.Render(FormatTimeAgo(c.CreatedAt)),
	}
	return strings.Join(parts, "  ")
}

// ConflictMarkdown renders a conflict as markdown for glamour: a heading,
// a short summary and the two competing versions as JSON blocks.
func ConflictMarkdown(c *models.ConflictRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Conflict %s\n\n", c.ID)
	fmt.Fprintf(&sb, "- **Resource:** %s\n", c.ResourceType)
	fmt.Fprintf(&sb, "- **Action:** %s\n", c.Action)
	fmt.Fprintf(&sb, "- **Mutation:** `%s`\n", c.MutationID)
	fmt.Fprintf(&sb, "- **Tenant:** %s\n", c.Tenant)
	fmt.Fprintf(&sb, "- **Detected:** %s\n", c.CreatedAt.Local().Format(time.DateTime))
	if c.Resolved {
		fmt.Fprintf(&sb, "- **Resolved:** kept %s", c.Resolution)
		if c.ResolvedAt != nil {
			fmt.Fprintf(&sb, " at %s", c.ResolvedAt.Local().Format(time.DateTime))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n## Client version\n\n```json\n")
	sb.WriteString(PrettyJSON(c.ClientData))
	sb.WriteString("\n```\n\n## Server version\n\n```json\n")
	sb.WriteString(PrettyJSON(c.ServerData))
	sb.WriteString("\n```\n")
	return sb.String()
}

// FormatHistoryLine formats one sync history entry
func FormatHistoryLine(h models.SyncHistoryEntry) string {
	line := fmt.Sprintf("%s  %-9s  %s/%s  %s",
		subtleStyle.Render(h.Timestamp.Local().Format("01-02 15:04:05")),
		FormatOutcome(h.Outcome),
		h.ResourceType, h.Action, h.MutationID)
	if h.Strategy != "" {
		line += subtleStyle.Render(" via " + h.Strategy)
	}
	if h.Error != "" {
		line += "  " + errorStyle.Render(h.Error)
	}
	return line
}

// ConnectivityBadge returns a colored online/offline marker
func ConnectivityBadge(online bool) string {
	if online {
		return successStyle.Render("● online")
	}
	return errorStyle.Render("○ offline")
}

// PrettyJSON indents raw JSON, returning it unchanged if it does not parse
func PrettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(data)
}

// Truncate shortens s to width display cells, ANSI-aware. width <= 0 disables.
func Truncate(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nPENDING:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
