// Package metrics aggregates per-turn records into run-level metrics.
package metrics

import (
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/statistics"
)

// Options tune Aggregate.
type Options struct {
	// Seed fixes the bootstrap resampling; negative is random.
	Seed int64
	// SkipBootstrap leaves AccuracyBootstrapCI nil.
	SkipBootstrap bool
}

// Aggregate computes run metrics. Records with a hard error are counted under
// Errors and never as comparable. Averages cover every record that has an
// elapsed time on that side; they are nil when no record does.
func Aggregate(records []models.TurnRecord, opts Options) models.Metrics {
	m := models.Metrics{NumTurns: len(records)}

	var pred, gold, wall []float64
	var matches []bool
	for _, r := range records {
		wall = append(wall, r.AgentWallMs)
		if r.PredQueryTimeMs != nil {
			pred = append(pred, *r.PredQueryTimeMs)
		}
		if r.GoldQueryTimeMs != nil {
			gold = append(gold, *r.GoldQueryTimeMs)
		}
		if r.Error != "" {
			m.Errors++
			continue
		}
		switch r.Verdict {
		case models.VerdictMatch:
			m.Comparable++
			m.Matches++
			matches = append(matches, true)
		case models.VerdictMismatch:
			m.Comparable++
			matches = append(matches, false)
		}
	}

	if m.Comparable > 0 {
		acc := float64(m.Matches) / float64(m.Comparable)
		m.Accuracy = &acc
		if !opts.SkipBootstrap {
			ci := statistics.BootstrapCIWithSeed(statistics.Indicators(matches), statistics.DefaultConfidenceLevel, opts.Seed)
			m.AccuracyBootstrapCI = &ci
		}
	}

	m.PredQueryTimeAvgMs = meanOrNil(pred)
	m.GoldQueryTimeAvgMs = meanOrNil(gold)
	m.PredQueryTimeP50Ms = percentileOrNil(pred, 50)
	m.PredQueryTimeP95Ms = percentileOrNil(pred, 95)
	m.GoldQueryTimeP50Ms = percentileOrNil(gold, 50)
	m.GoldQueryTimeP95Ms = percentileOrNil(gold, 95)
	m.AgentWallAvgMs = Mean(wall)
	return m
}

// Mean is the arithmetic mean; zero for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanOrNil(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	v := Mean(values)
	return &v
}

func percentileOrNil(values []float64, p float64) *float64 {
	v, ok := statistics.Percentile(values, p)
	if !ok {
		return nil
	}
	return &v
}
