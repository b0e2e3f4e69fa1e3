package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorDanger  = lipgloss.Color("#EF4444") // Red
	colorMuted   = lipgloss.Color("#6B7280") // Gray
	colorWarning = lipgloss.Color("#F59E0B") // Amber
)

var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Foreground(colorDanger)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// cliLogger implements core.Logger for terminal output. Info lines are only
// shown with --verbose.
type cliLogger struct {
	out, err io.Writer
	verbose  bool
}

func newLogger(out, err io.Writer, verbose bool) *cliLogger {
	return &cliLogger{out: out, err: err, verbose: verbose}
}

func (l *cliLogger) Info(msg string) {
	if l.verbose {
		fmt.Fprintln(l.out, mutedStyle.Render(msg))
	}
}

func (l *cliLogger) Warn(msg string) {
	fmt.Fprintln(l.err, warningStyle.Render("Warning: "+msg))
}

func (l *cliLogger) Error(msg string) {
	fmt.Fprintln(l.err, errorStyle.Render("Error: "+msg))
}

func (l *cliLogger) Success(msg string) {
	fmt.Fprintln(l.out, successStyle.Render("✓ "+msg))
}
