package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/sqleval/internal/agent"
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/orchestration"
	"github.com/spboyer/sqleval/internal/spinner"
	"golang.org/x/term"
)

// progressReporter prints run progress. On a terminal it keeps one spinner
// status line; otherwise it prints one line per finished turn.
type progressReporter struct {
	out     io.Writer
	verbose bool
	tty     bool

	mu      sync.Mutex
	spin    *spinner.Spinner
	done    int
	matches int
	errors  int
}

func newProgressReporter(out io.Writer, verbose bool) *progressReporter {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &progressReporter{out: out, verbose: verbose, tty: tty && !verbose}
}

func (p *progressReporter) round(ev agent.RoundEvent) {
	if !p.verbose {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case ev.Outcome != nil:
		status := string(ev.Outcome.Status)
		if ev.Outcome.Error != "" {
			status += ": " + ev.Outcome.Error
		}
		fmt.Fprintf(p.out, "  %s round %d [%s] %s -> %s\n", ev.TurnUID, ev.Round, ev.Action, truncate(oneLine(ev.SQL), 120), status)
	default:
		fmt.Fprintf(p.out, "  %s round %d [%s]\n", ev.TurnUID, ev.Round, ev.Action)
	}
}

func (p *progressReporter) event(ev orchestration.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.EventType {
	case orchestration.EventTurnStart:
		if p.tty && p.spin == nil {
			p.spin = spinner.Start(p.out, fmt.Sprintf("[0/%d] evaluating", ev.TotalTurns))
		}
		if p.verbose {
			fmt.Fprintf(p.out, "[%d/%d] %s\n", ev.TurnNum, ev.TotalTurns, ev.TurnUID)
		}
	case orchestration.EventTurnComplete:
		p.done++
		if ev.Verdict == models.VerdictMatch {
			p.matches++
		}
		if ev.Error != "" {
			p.errors++
		}
		if p.spin != nil {
			p.spin.Update(fmt.Sprintf("[%d/%d] matches=%d errors=%d", p.done, ev.TotalTurns, p.matches, p.errors))
			return
		}
		line := fmt.Sprintf("%s [%d/%d] %s (%s)", verdictIcon(ev.Verdict, ev.Error), p.done, ev.TotalTurns, ev.TurnUID, formatDuration(ev.DurationMs))
		if ev.Error != "" {
			line += " " + ev.Error
		}
		fmt.Fprintln(p.out, line)
	case orchestration.EventRunComplete, orchestration.EventRunStopped:
		if p.spin != nil {
			p.spin.Stop()
			p.spin = nil
			fmt.Fprintf(p.out, "%d turns evaluated, %d matches, %d errors\n", p.done, p.matches, p.errors)
		}
		if ev.EventType == orchestration.EventRunStopped {
			fmt.Fprintf(p.out, "Run stopped: %s\n", ev.Error)
		}
	}
}

func verdictIcon(v models.VerdictStatus, errMsg string) string {
	switch {
	case errMsg != "":
		return "!"
	case v == models.VerdictMatch:
		return "✓"
	case v == models.VerdictMismatch:
		return "✗"
	default:
		return "·"
	}
}

// formatDuration renders milliseconds with the same stable rules the
// summary uses.
func formatDuration(ms float64) string {
	d := time.Duration(ms * float64(time.Millisecond))
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}

func printSummary(w io.Writer, result *models.ExperimentResult) {
	m := result.Metrics
	rule := strings.Repeat("=", 51)

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, " EXPERIMENT RESULTS")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	rows := [][2]string{
		{"Experiment", result.ExperimentName},
		{"Run ID", result.RunID},
		{"Turns", fmt.Sprint(m.NumTurns)},
		{"Comparable", fmt.Sprint(m.Comparable)},
		{"Matches", fmt.Sprint(m.Matches)},
		{"Errors", fmt.Sprint(m.Errors)},
		{"Accuracy", formatPercent(m.Accuracy)},
	}
	if ci := m.AccuracyBootstrapCI; ci != nil && ci.NumBootstraps > 0 {
		rows = append(rows, [2]string{"95% CI", fmt.Sprintf("[%.1f%%, %.1f%%]", ci.Lower*100, ci.Upper*100)})
	}
	rows = append(rows,
		[2]string{"Pred query avg", formatMs(m.PredQueryTimeAvgMs)},
		[2]string{"Gold query avg", formatMs(m.GoldQueryTimeAvgMs)},
		[2]string{"Pred query p95", formatMs(m.PredQueryTimeP95Ms)},
		[2]string{"Gold query p95", formatMs(m.GoldQueryTimeP95Ms)},
		[2]string{"Agent avg", formatDuration(m.AgentWallAvgMs)},
		[2]string{"Duration", formatDuration(float64(result.FinishedAt.Sub(result.StartedAt).Milliseconds()))},
	)
	printTable(w, rows)
}

func printTable(w io.Writer, rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, runewidth.StringWidth(r[0]))
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s %s\n", padRight(r[0]+":", width+1), r[1])
	}
}

func formatPercent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func formatMs(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2fms", *v)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// truncateName shortens a name to maxLen display cells, ending in "…".
func truncateName(name string, maxLen int) string {
	if runewidth.StringWidth(name) <= maxLen {
		return name
	}
	return runewidth.Truncate(name, maxLen, "…")
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}
