package reporting

import (
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/statistics"
)

// Flip is a turn whose verdict changed between two runs.
type Flip struct {
	TurnUID string               `json:"turn_uid"`
	Before  models.VerdictStatus `json:"before"`
	After   models.VerdictStatus `json:"after"`
}

// Comparison contrasts a baseline run with a candidate run.
type Comparison struct {
	Baseline        string   `json:"baseline"`
	Candidate       string   `json:"candidate"`
	BaselineAcc     *float64 `json:"baseline_accuracy"`
	CandidateAcc    *float64 `json:"candidate_accuracy"`
	AccuracyDelta   *float64 `json:"accuracy_delta"`
	PairedTurns     int      `json:"paired_turns"`
	Improved        []Flip   `json:"improved"`
	Regressed       []Flip   `json:"regressed"`
	OnlyInBaseline  []string `json:"only_in_baseline"`
	OnlyInCandidate []string `json:"only_in_candidate"`

	// Bootstrap interval over paired per-turn differences.
	PairedDeltaCI *statistics.ConfidenceInterval `json:"paired_delta_ci,omitempty"`
	Significant   bool                           `json:"significant"`
}

// CompareResults pairs turns by uid. Only turns comparable and error free in
// both runs enter the paired statistics; flips are listed in baseline order.
func CompareResults(baseline, candidate *models.ExperimentResult, seed int64) *Comparison {
	c := &Comparison{
		Baseline:     baseline.ExperimentName,
		Candidate:    candidate.ExperimentName,
		BaselineAcc:  baseline.Metrics.Accuracy,
		CandidateAcc: candidate.Metrics.Accuracy,
	}
	if c.BaselineAcc != nil && c.CandidateAcc != nil {
		d := *c.CandidateAcc - *c.BaselineAcc
		c.AccuracyDelta = &d
	}

	cand := make(map[string]models.TurnRecord, len(candidate.Items))
	for _, it := range candidate.Items {
		cand[it.TurnUID] = it
	}
	seen := make(map[string]bool, len(baseline.Items))

	var before, after []bool
	for _, b := range baseline.Items {
		seen[b.TurnUID] = true
		a, ok := cand[b.TurnUID]
		if !ok {
			c.OnlyInBaseline = append(c.OnlyInBaseline, b.TurnUID)
			continue
		}
		if !scored(b) || !scored(a) {
			continue
		}
		bm, am := b.Verdict == models.VerdictMatch, a.Verdict == models.VerdictMatch
		before, after = append(before, bm), append(after, am)
		switch {
		case am && !bm:
			c.Improved = append(c.Improved, Flip{TurnUID: b.TurnUID, Before: b.Verdict, After: a.Verdict})
		case bm && !am:
			c.Regressed = append(c.Regressed, Flip{TurnUID: b.TurnUID, Before: b.Verdict, After: a.Verdict})
		}
	}
	for _, it := range candidate.Items {
		if !seen[it.TurnUID] {
			c.OnlyInCandidate = append(c.OnlyInCandidate, it.TurnUID)
		}
	}

	c.PairedTurns = len(before)
	if c.PairedTurns > 0 {
		ci := statistics.BootstrapCIWithSeed(statistics.PairedDifferences(before, after), statistics.DefaultConfidenceLevel, seed)
		c.PairedDeltaCI = &ci
		c.Significant = ci.NumBootstraps > 0 && statistics.IsSignificant(ci)
	}
	return c
}

func scored(r models.TurnRecord) bool {
	return r.Error == "" && (r.Verdict == models.VerdictMatch || r.Verdict == models.VerdictMismatch)
}
