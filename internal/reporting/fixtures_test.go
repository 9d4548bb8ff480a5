package reporting

import (
	"time"

	"github.com/spboyer/sqleval/internal/models"
)

func ptr[T any](v T) *T { return &v }

func sampleResult() *models.ExperimentResult {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	ok := &models.Outcome{Executed: true, Success: true, Status: models.StatusSuccess, ElapsedMs: ptr(1.5), Results: []models.Row{{int64(5)}}}
	wrong := &models.Outcome{Executed: true, Success: true, Status: models.StatusSuccess, ElapsedMs: ptr(2.5), Results: []models.Row{{int64(4)}}}
	return &models.ExperimentResult{
		ExperimentName: "baseline",
		RunID:          "run-1",
		StartedAt:      start,
		FinishedAt:     start.Add(3500 * time.Millisecond),
		Config: map[string]any{
			"agent": map[string]any{"model": "gpt-4o-mini", "engine": "scripted"},
		},
		Metrics: models.Metrics{
			NumTurns:           4,
			Comparable:         2,
			Matches:            1,
			Errors:             1,
			Accuracy:           ptr(0.5),
			PredQueryTimeAvgMs: ptr(2.0),
			GoldQueryTimeAvgMs: ptr(1.5),
		},
		Items: []models.TurnRecord{
			{TurnUID: "t1", DBFile: "dbs/school.sqlite", Question: "How many students?", GoldSQL: "SELECT COUNT(*) FROM students",
				AgentWallMs: 1000, PredSQL: "SELECT COUNT(*) FROM students", PredExecution: ok, GoldExecution: ok,
				ResultsMatch: ptr(true), Verdict: models.VerdictMatch},
			{TurnUID: "t2", DBFile: "dbs/school.sqlite", Question: "How many students?", GoldSQL: "SELECT COUNT(*) FROM students",
				AgentWallMs: 1500, PredSQL: "SELECT 4", PredExecution: wrong, GoldExecution: ok,
				ResultsMatch: ptr(false), Verdict: models.VerdictMismatch},
			{TurnUID: "t3", DBFile: "dbs/school.sqlite", Question: "Hello?", AgentWallMs: 500, Verdict: models.VerdictNotComparable},
			{TurnUID: "t4", Question: "Broken", Verdict: models.VerdictNotComparable, Error: "oracle planner call: boom"},
		},
	}
}
