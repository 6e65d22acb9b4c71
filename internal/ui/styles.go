// Package ui holds the lipgloss styles used for devcrew's terminal output.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/devcrew/internal/util"
)

var (
	// Colors meet WCAG AA contrast on dark and light terminals
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	SuccessColor = lipgloss.Color("#10B981") // Green
	WarningColor = lipgloss.Color("#F59E0B") // Amber
	ErrorColor   = lipgloss.Color("#F87171") // Red
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
	InfoColor    = lipgloss.Color("#60A5FA") // Blue

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	Success = lipgloss.NewStyle().Foreground(SuccessColor)
	Warning = lipgloss.NewStyle().Foreground(WarningColor)
	Error   = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted   = lipgloss.NewStyle().Foreground(MutedColor)
	Info    = lipgloss.NewStyle().Foreground(InfoColor)

	Label = lipgloss.NewStyle().
		Foreground(MutedColor).
		Width(18)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Padding(0, 1)
)

// MaxLineWidth bounds single values printed in key/value rows.
const MaxLineWidth = 72

// Status renders text in the color for a pass/warn/fail/skip style status.
func Status(status, text string) string {
	switch status {
	case "pass", "passed", "completed", "approved", "cached":
		return Success.Render(text)
	case "warn", "differential", "pending", "running":
		return Warning.Render(text)
	case "fail", "failed", "rejected", "cancelled":
		return Error.Render(text)
	default:
		return Muted.Render(text)
	}
}

// Severity renders an error severity name in a matching color.
func Severity(s string) string {
	switch s {
	case "critical", "high":
		return Error.Render(s)
	case "medium":
		return Warning.Render(s)
	case "low":
		return Info.Render(s)
	default:
		return Muted.Render(s)
	}
}

// Header prints a bold title followed by an optional muted subtitle.
func Header(w io.Writer, title, subtitle string) {
	_, _ = fmt.Fprintln(w, Title.Render(title))
	if subtitle != "" {
		_, _ = fmt.Fprintln(w, Subtitle.Render(subtitle))
	}
}

// KV prints an aligned "label value" row, truncating long values.
func KV(w io.Writer, label string, value any) {
	v := util.TruncateANSI(fmt.Sprint(value), MaxLineWidth)
	_, _ = fmt.Fprintf(w, "%s %s\n", Label.Render(label+":"), v)
}

// Boxed renders lines inside a rounded border.
func Boxed(lines ...string) string {
	return Box.Render(strings.Join(lines, "\n"))
}
