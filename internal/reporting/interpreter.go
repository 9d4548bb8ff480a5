package reporting

import (
	"fmt"
	"strings"

	"github.com/spboyer/sqleval/internal/models"
)

// InterpretAccuracy returns a plain-language label for execution accuracy.
func InterpretAccuracy(acc *float64) string {
	if acc == nil {
		return "Not measured (no turn had a reference query)"
	}
	pct := *acc * 100
	switch {
	case pct > 90:
		return "Excellent (>90%)"
	case pct >= 70:
		return "Good (70-90%)"
	case pct >= 50:
		return "Needs Work (50-70%)"
	default:
		return "Poor (<50%)"
	}
}

// InterpretLatency compares average predicted and reference query times.
func InterpretLatency(pred, gold *float64) string {
	if pred == nil || gold == nil || *gold <= 0 {
		return "Not enough timings to compare query cost."
	}
	ratio := *pred / *gold
	switch {
	case ratio <= 1.1:
		return fmt.Sprintf("Predicted queries run about as fast as the reference (%.1fx).", ratio)
	case ratio <= 3:
		return fmt.Sprintf("Predicted queries are somewhat slower than the reference (%.1fx).", ratio)
	default:
		return fmt.Sprintf("Predicted queries are much slower than the reference (%.1fx).", ratio)
	}
}

// FormatSummaryReport produces a plain-language report for a run.
func FormatSummaryReport(result *models.ExperimentResult) string {
	var b strings.Builder
	m := result.Metrics

	b.WriteString("=== Interpretation ===\n\n")
	fmt.Fprintf(&b, "Accuracy:  %s\n", InterpretAccuracy(m.Accuracy))
	if ci := m.AccuracyBootstrapCI; ci != nil && ci.NumBootstraps > 0 {
		fmt.Fprintf(&b, "           %.0f%% interval [%.2f, %.2f]\n", ci.ConfidenceLevel*100, ci.Lower, ci.Upper)
	}
	fmt.Fprintf(&b, "Latency:   %s\n", InterpretLatency(m.PredQueryTimeAvgMs, m.GoldQueryTimeAvgMs))
	fmt.Fprintf(&b, "Turns:     %d matched, %d mismatched, %d not comparable, %d errors out of %d\n",
		m.Matches, m.Comparable-m.Matches, m.NumTurns-m.Comparable-m.Errors, m.Errors, m.NumTurns)

	var misses []models.TurnRecord
	for _, it := range result.Items {
		if it.Verdict == models.VerdictMismatch || it.Error != "" {
			misses = append(misses, it)
		}
	}
	if len(misses) > 0 {
		b.WriteString("\nTurns to review:\n")
		for _, it := range misses {
			reason := "results differ"
			switch {
			case it.Error != "":
				reason = "error: " + it.Error
			case it.PredExecution == nil:
				reason = "no query was run"
			case !it.PredExecution.Success:
				reason = string(it.PredExecution.Status)
			}
			fmt.Fprintf(&b, "  ✗ %s: %s\n", it.TurnUID, reason)
		}
	}

	return b.String()
}
