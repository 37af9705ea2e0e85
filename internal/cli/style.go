package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorInfo    = lipgloss.Color("#2196F3")
	colorWarning = lipgloss.Color("#FFC107")
	colorSuccess = lipgloss.Color("#8BC34A")
	colorDanger  = lipgloss.Color("#e53935")
)

// stageReporter prints pipeline stage lines to w, styled for w's terminal.
type stageReporter struct {
	w     io.Writer
	stage lipgloss.Style
	warn  lipgloss.Style
}

func newStageReporter(w io.Writer) *stageReporter {
	r := lipgloss.NewRenderer(w)
	return &stageReporter{
		w:     w,
		stage: r.NewStyle().Bold(true).Foreground(colorInfo),
		warn:  r.NewStyle().Foreground(colorWarning),
	}
}

func (s *stageReporter) Stage(msg string) {
	fmt.Fprintln(s.w, s.stage.Render(">> "+msg))
}

func (s *stageReporter) Warn(msg string) {
	fmt.Fprintln(s.w, s.warn.Render("[WARN] "+msg))
}

// statusLabel renders OK or FAIL in the matching colour for w.
func statusLabel(w io.Writer, ok bool) string {
	r := lipgloss.NewRenderer(w)
	if ok {
		return r.NewStyle().Foreground(colorSuccess).Render("OK")
	}
	return r.NewStyle().Foreground(colorDanger).Render("FAIL")
}
