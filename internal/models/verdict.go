package models

// VerdictStatus is the scoring result for one turn.
type VerdictStatus string

const (
	VerdictMatch         VerdictStatus = "match"
	VerdictMismatch      VerdictStatus = "mismatch"
	VerdictNotComparable VerdictStatus = "not_comparable"
)

// Verdict compares a predicted execution with the reference execution.
type Verdict struct {
	Status        VerdictStatus `json:"status"`
	PredElapsedMs *float64      `json:"pred_query_time_ms"`
	GoldElapsedMs *float64      `json:"gold_query_time_ms"`
	DeltaMs       *float64      `json:"query_time_delta_ms"`
}

// Comparable is true when a reference existed, whatever the outcome.
func (v Verdict) Comparable() bool {
	return v.Status == VerdictMatch || v.Status == VerdictMismatch
}

// Match returns the boolean verdict, or nil when the turn was not comparable.
func (v Verdict) Match() *bool {
	if !v.Comparable() {
		return nil
	}
	m := v.Status == VerdictMatch
	return &m
}
