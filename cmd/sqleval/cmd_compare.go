package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spboyer/sqleval/internal/reporting"
	"github.com/spf13/cobra"
)

var compareOutputFormat string

func newCompareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <baseline.json> <candidate.json>",
		Short: "Compare two experiment result files",
		Long: `Compare two results.json files turn by turn.

Reports the accuracy delta, the turns that flipped between match and mismatch,
and a bootstrap interval over the paired per-turn differences.`,
		Args: cobra.ExactArgs(2),
		RunE: compareCommandE,
	}

	cmd.Flags().StringVarP(&compareOutputFormat, "format", "f", "table", "Output format: table or json")

	return cmd
}

func compareCommandE(cmd *cobra.Command, args []string) error {
	if compareOutputFormat != "table" && compareOutputFormat != "json" {
		return fmt.Errorf("unsupported format %q: must be table or json", compareOutputFormat)
	}

	baseline, err := reporting.ReadResults(args[0])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}
	candidate, err := reporting.ReadResults(args[1])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[1], err)
	}

	c := reporting.CompareResults(baseline, candidate, -1)

	out := cmd.OutOrStdout()
	if compareOutputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	printComparisonTable(out, c)
	return nil
}

func printComparisonTable(w io.Writer, c *reporting.Comparison) {
	rule := strings.Repeat("=", 51)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, " COMPARISON")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	rows := [][2]string{
		{"Baseline", c.Baseline},
		{"Candidate", c.Candidate},
		{"Baseline accuracy", formatPercent(c.BaselineAcc)},
		{"Candidate accuracy", formatPercent(c.CandidateAcc)},
		{"Delta", formatDelta(c.AccuracyDelta)},
		{"Paired turns", fmt.Sprint(c.PairedTurns)},
	}
	if ci := c.PairedDeltaCI; ci != nil && ci.NumBootstraps > 0 {
		sig := "not significant"
		if c.Significant {
			sig = "significant"
		}
		rows = append(rows, [2]string{"95% CI", fmt.Sprintf("[%+.1f%%, %+.1f%%] (%s)", ci.Lower*100, ci.Upper*100, sig)})
	}
	printTable(w, rows)

	printFlips(w, "Improved", c.Improved)
	printFlips(w, "Regressed", c.Regressed)
	if len(c.OnlyInBaseline) > 0 {
		fmt.Fprintf(w, "\nOnly in baseline: %s\n", strings.Join(c.OnlyInBaseline, ", "))
	}
	if len(c.OnlyInCandidate) > 0 {
		fmt.Fprintf(w, "\nOnly in candidate: %s\n", strings.Join(c.OnlyInCandidate, ", "))
	}
}

func printFlips(w io.Writer, title string, flips []reporting.Flip) {
	if len(flips) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(flips))
	for _, f := range flips {
		fmt.Fprintf(w, "  %s  %s -> %s\n", padRight(truncateName(f.TurnUID, 40), 40), f.Before, f.After)
	}
}

func formatDelta(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *v*100)
}
