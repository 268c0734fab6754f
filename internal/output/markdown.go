package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Markdown wrap bounds
const (
	fallbackWidth = 80
	narrowest     = 20
)

// TerminalWidth returns the stdout terminal width, then $COLUMNS, then fallback
// (80 when fallback <= 0).
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	if fallback <= 0 {
		return fallbackWidth
	}
	return fallback
}

// RenderMarkdown renders text for stdout, wrapping at the terminal width.
// Output piped to a file or another program gets the plain notty style.
func RenderMarkdown(text string) (string, error) {
	style := "notty"
	if term.IsTerminal(int(os.Stdout.Fd())) {
		style = "auto"
	}
	return renderMarkdown(text, TerminalWidth(fallbackWidth), style)
}

// RenderMarkdownWithWidth renders text with the plain style at a fixed width.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	return renderMarkdown(text, width, "notty")
}

func renderMarkdown(text string, width int, style string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(width, narrowest))}
	if style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}
