package models

import (
	"time"

	"github.com/spboyer/sqleval/internal/statistics"
)

// TurnRecord is the persisted result for one evaluated turn.
type TurnRecord struct {
	TurnUID          string        `json:"turn_uid"`
	DBFile           string        `json:"db_file"`
	Question         string        `json:"question"`
	GoldSQL          string        `json:"gold_sql"`
	Difficulty       string        `json:"difficulty,omitempty"`
	AgentWallMs      float64       `json:"agent_wall_ms"`
	AgentResult      *Transcript   `json:"agent_result"`
	PredSQL          string        `json:"pred_sql"`
	PredExecution    *Outcome      `json:"pred_execution"`
	PredQueryTimeMs  *float64      `json:"pred_query_time_ms"`
	GoldExecution    *Outcome      `json:"gold_execution"`
	GoldQueryTimeMs  *float64      `json:"gold_query_time_ms"`
	QueryTimeDeltaMs *float64      `json:"query_time_delta_ms"`
	ResultsMatch     *bool         `json:"results_match"`
	Verdict          VerdictStatus `json:"verdict"`
	// Error is set when the turn failed hard and was skipped.
	Error string `json:"error,omitempty"`
}

// Metrics are the aggregates over all turn records of a run.
type Metrics struct {
	NumTurns           int      `json:"num_turns"`
	Comparable         int      `json:"comparable"`
	Matches            int      `json:"matches"`
	Errors             int      `json:"errors"`
	Accuracy           *float64 `json:"accuracy"`
	PredQueryTimeAvgMs *float64 `json:"pred_query_time_avg_ms"`
	GoldQueryTimeAvgMs *float64 `json:"gold_query_time_avg_ms"`
	PredQueryTimeP50Ms *float64 `json:"pred_query_time_p50_ms,omitempty"`
	PredQueryTimeP95Ms *float64 `json:"pred_query_time_p95_ms,omitempty"`
	GoldQueryTimeP50Ms *float64 `json:"gold_query_time_p50_ms,omitempty"`
	GoldQueryTimeP95Ms *float64 `json:"gold_query_time_p95_ms,omitempty"`
	AgentWallAvgMs     float64  `json:"agent_wall_avg_ms"`

	// 95% bootstrap interval over per-turn match indicators.
	AccuracyBootstrapCI *statistics.ConfidenceInterval `json:"accuracy_bootstrap_ci,omitempty"`
}

// AccuracyOrZero returns the accuracy, treating "no comparable turns" as zero.
func (m Metrics) AccuracyOrZero() float64 {
	if m.Accuracy == nil {
		return 0
	}
	return *m.Accuracy
}

// ExperimentResult is the artifact persisted as results.json.
type ExperimentResult struct {
	ExperimentName string         `json:"experiment_name"`
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Config         map[string]any `json:"config"`
	DataSummary    DataSummary    `json:"data_summary"`
	Metrics        Metrics        `json:"metrics"`
	Items          []TurnRecord   `json:"items"`
}
