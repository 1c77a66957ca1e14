// Package ui provides terminal output helpers for flyerctl.
package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// UI writes user-facing output. Results go to out, progress and diagnostics to errOut.
type UI struct {
	out     io.Writer
	errOut  io.Writer
	noColor bool
}

// New creates a UI over the given writers.
func New(out, errOut io.Writer, noColor bool) *UI {
	return &UI{out: out, errOut: errOut, noColor: noColor}
}

func (u *UI) paint(w io.Writer, attrs []color.Attribute, format string, args ...interface{}) {
	c := color.New(attrs...)
	if u.noColor {
		c.DisableColor()
	}
	c.Fprintf(w, format, args...)
}

// Success prints a success message.
func (u *UI) Success(format string, args ...interface{}) {
	u.paint(u.out, []color.Attribute{color.FgGreen}, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (u *UI) Error(format string, args ...interface{}) {
	u.paint(u.errOut, []color.Attribute{color.FgRed}, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (u *UI) Warning(format string, args ...interface{}) {
	u.paint(u.errOut, []color.Attribute{color.FgYellow}, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (u *UI) Info(format string, args ...interface{}) {
	u.paint(u.out, []color.Attribute{color.FgCyan}, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (u *UI) Section(title string) {
	fmt.Fprintln(u.out)
	u.paint(u.out, []color.Attribute{color.FgMagenta, color.Bold}, "━━━ %s ━━━\n", strings.ToUpper(title))
}

// Table displays rows in aligned columns.
func (u *UI) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(u.out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
}

// NewProgressBar creates a page progress bar on the diagnostics writer.
func (u *UI) NewProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(u.errOut),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pagine"),
		progressbar.OptionEnableColorCodes(!u.noColor),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(u.errOut, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// NewSpinner creates a spinner for indeterminate waits. It stays silent when
// errOut is not a terminal.
func (u *UI) NewSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(u.errOut))
	s.Suffix = " " + message
	return s
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
