package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spboyer/sqleval/internal/agent"
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/orchestration"
	"github.com/stretchr/testify/assert"
)

func TestProgressReporter_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressReporter(&buf, false)
	assert.False(t, p.tty)

	p.event(orchestration.ProgressEvent{EventType: orchestration.EventTurnStart, TurnUID: "t1", TurnNum: 1, TotalTurns: 3})
	p.round(agent.RoundEvent{TurnUID: "t1", Round: 1, Action: "query", SQL: "SELECT 1"})
	p.event(orchestration.ProgressEvent{EventType: orchestration.EventTurnComplete, TurnUID: "t1", TotalTurns: 3, Verdict: models.VerdictMatch, DurationMs: 120})
	p.event(orchestration.ProgressEvent{EventType: orchestration.EventTurnComplete, TurnUID: "t2", TotalTurns: 3, Verdict: models.VerdictMismatch, DurationMs: 1500})
	p.event(orchestration.ProgressEvent{EventType: orchestration.EventTurnComplete, TurnUID: "t3", TotalTurns: 3, Verdict: models.VerdictNotComparable, Error: "boom"})
	p.event(orchestration.ProgressEvent{EventType: orchestration.EventRunStopped, Error: "turn t3: boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"✓ [1/3] t1 (120ms)",
		"✗ [2/3] t2 (1.5s)",
		"! [3/3] t3 (0ms) boom",
		"Run stopped: turn t3: boom",
	}, lines)
}

func TestProgressReporter_Verbose(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressReporter(&buf, true)

	p.event(orchestration.ProgressEvent{EventType: orchestration.EventTurnStart, TurnUID: "t1", TurnNum: 1, TotalTurns: 1})
	p.round(agent.RoundEvent{TurnUID: "t1", Round: 1, Action: "query", SQL: "SELECT\n  COUNT(*)\nFROM students",
		Outcome: &models.Outcome{Status: models.StatusSuccess}})
	p.round(agent.RoundEvent{TurnUID: "t1", Round: 2, Action: "query", SQL: "DROP TABLE students",
		Outcome: &models.Outcome{Status: models.StatusRejectedByPolicy, Error: "Query rejected by read-only policy"}})
	p.round(agent.RoundEvent{TurnUID: "t1", Round: 3, Action: "final"})

	out := buf.String()
	assert.Contains(t, out, "[1/1] t1\n")
	assert.Contains(t, out, "t1 round 1 [query] SELECT COUNT(*) FROM students -> success\n")
	assert.Contains(t, out, "-> rejected_by_policy: Query rejected by read-only policy\n")
	assert.Contains(t, out, "t1 round 3 [final]\n")
}

func TestPrintSummary(t *testing.T) {
	acc := 0.5
	avg := 1.25
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	result := &models.ExperimentResult{
		ExperimentName: "smoke",
		RunID:          "run-1",
		StartedAt:      start,
		FinishedAt:     start.Add(2 * time.Second),
		Metrics: models.Metrics{
			NumTurns: 3, Comparable: 2, Matches: 1, Accuracy: &acc,
			PredQueryTimeAvgMs: &avg, AgentWallAvgMs: 40,
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "EXPERIMENT RESULTS")
	assert.Contains(t, out, "Accuracy:       50.0%\n")
	assert.Contains(t, out, "Pred query avg: 1.25ms\n")
	assert.Contains(t, out, "Gold query avg: n/a\n")
	assert.Contains(t, out, "Agent avg:      40ms\n")
	assert.Contains(t, out, "Duration:       2s\n")
	assert.NotContains(t, out, "95% CI")
}

func TestPadRightAndTruncate(t *testing.T) {
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.Equal(t, "abcdef", padRight("abcdef", 3))
	assert.Equal(t, "日本  ", padRight("日本", 6))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "short", truncateName("short", 10))
	assert.Equal(t, "abcd…", truncateName("abcdefgh", 5))
}
