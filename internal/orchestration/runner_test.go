package orchestration

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/sqleval/internal/agent"
	"github.com/spboyer/sqleval/internal/config"
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/oracle"
	"github.com/spboyer/sqleval/internal/sqlexec"
	"github.com/spboyer/sqleval/internal/sqlexec/sqlexectest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	countQuery = `{"action":"query","reasoning":"count","sql":"SELECT COUNT(*) FROM students"}`
	finalFive  = `{"action":"final","final_answer":"5"}`
)

func scriptedAgent(t *testing.T, turns map[string][]any) *agent.Controller {
	t.Helper()
	tr, err := oracle.NewScripted(oracle.Script{Turns: turns})
	require.NoError(t, err)
	return agent.NewController(oracle.NewClient(tr), sqlexec.SQLiteOpener{})
}

func TestRun_StudentsCountMatches(t *testing.T) {
	db := sqlexectest.Students(t)
	turns := []models.Turn{{
		TurnUID: "t1",
		Text:    "How many students are there?",
		DBFile:  db,
		GoldSQL: "SELECT COUNT(*) FROM students",
	}}
	a := scriptedAgent(t, map[string][]any{"t1": {countQuery, finalFive}})

	res, err := NewRunner(a, sqlexec.SQLiteOpener{}, WithBootstrapSeed(1)).Run(context.Background(), "students", turns)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	item := res.Items[0]
	require.NotNil(t, item.ResultsMatch)
	assert.True(t, *item.ResultsMatch)
	assert.Equal(t, models.VerdictMatch, item.Verdict)
	assert.Equal(t, 1, item.AgentResult.Len())
	assert.Equal(t, "SELECT COUNT(*) FROM students", item.PredSQL)
	require.NotNil(t, item.GoldExecution)
	assert.Equal(t, []models.Row{{int64(5)}}, item.GoldExecution.Results)
	assert.NotNil(t, item.QueryTimeDeltaMs)

	assert.Equal(t, 1, res.Metrics.Comparable)
	assert.Equal(t, 1, res.Metrics.Matches)
	require.NotNil(t, res.Metrics.Accuracy)
	assert.Equal(t, 1.0, *res.Metrics.Accuracy)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "students", res.ExperimentName)
	assert.Equal(t, 1, res.DataSummary.NumTurns)
}

func TestRun_NoReferenceIsNotComparable(t *testing.T) {
	db := sqlexectest.Students(t)
	turns := []models.Turn{
		{TurnUID: "t1", Text: "How many students?", DBFile: db, GoldSQL: "SELECT COUNT(*) FROM students"},
		{TurnUID: "t2", Text: "Say hi", DBFile: db, GoldSQL: "   "},
	}
	a := scriptedAgent(t, map[string][]any{
		"t1": {`{"action":"query","sql":"SELECT 4"}`, finalFive},
		"t2": {countQuery, finalFive},
	})

	res, err := NewRunner(a, sqlexec.SQLiteOpener{}).Run(context.Background(), "exp", turns)
	require.NoError(t, err)

	assert.Equal(t, models.VerdictMismatch, res.Items[0].Verdict)
	assert.Equal(t, models.VerdictNotComparable, res.Items[1].Verdict)
	assert.Nil(t, res.Items[1].ResultsMatch)
	assert.Nil(t, res.Items[1].GoldExecution)
	assert.Equal(t, 1, res.Metrics.Comparable)
	require.NotNil(t, res.Metrics.Accuracy)
	assert.Equal(t, 0.0, *res.Metrics.Accuracy)
}

func TestRun_ZeroStepsWithReferenceIsMismatch(t *testing.T) {
	db := sqlexectest.Students(t)
	turns := []models.Turn{{TurnUID: "t1", Text: "q", DBFile: db, GoldSQL: "SELECT 1"}}
	a := scriptedAgent(t, map[string][]any{"t1": {finalFive}})

	res, err := NewRunner(a, sqlexec.SQLiteOpener{}).Run(context.Background(), "exp", turns)
	require.NoError(t, err)

	item := res.Items[0]
	assert.Equal(t, "", item.PredSQL)
	assert.Nil(t, item.PredExecution)
	assert.Nil(t, item.PredQueryTimeMs)
	assert.Equal(t, models.VerdictMismatch, item.Verdict)
}

func TestRun_RejectedReferenceIsMismatch(t *testing.T) {
	db := sqlexectest.Students(t)
	turns := []models.Turn{{TurnUID: "t1", Text: "q", DBFile: db, GoldSQL: "DELETE FROM students"}}
	a := scriptedAgent(t, map[string][]any{"t1": {countQuery, finalFive}})

	res, err := NewRunner(a, sqlexec.SQLiteOpener{}).Run(context.Background(), "exp", turns)
	require.NoError(t, err)

	item := res.Items[0]
	require.NotNil(t, item.GoldExecution)
	assert.Equal(t, models.StatusRejectedByPolicy, item.GoldExecution.Status)
	assert.False(t, item.GoldExecution.Executed)
	assert.Equal(t, models.VerdictMismatch, item.Verdict)
}

type fakeAgent struct {
	delay map[string]time.Duration
	fail  map[string]error
}

func (f fakeAgent) Run(ctx context.Context, turn *models.Turn) (*models.Transcript, error) {
	select {
	case <-time.After(f.delay[turn.TurnUID]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := f.fail[turn.TurnUID]; err != nil {
		return nil, err
	}
	return models.NewTranscript(nil, "done"), nil
}

func TestRun_ParallelKeepsInputOrder(t *testing.T) {
	turns := []models.Turn{{TurnUID: "a"}, {TurnUID: "b"}, {TurnUID: "c"}, {TurnUID: "d"}}
	a := fakeAgent{delay: map[string]time.Duration{
		"a": 40 * time.Millisecond,
		"b": 30 * time.Millisecond,
		"c": 20 * time.Millisecond,
		"d": 0,
	}}

	var mu sync.Mutex
	var completed []string
	r := NewRunner(a, sqlexec.SQLiteOpener{}, WithWorkers(4))
	r.OnProgress(func(ev ProgressEvent) {
		if ev.EventType == EventTurnComplete {
			mu.Lock()
			completed = append(completed, ev.TurnUID)
			mu.Unlock()
		}
	})

	res, err := r.Run(context.Background(), "exp", turns)
	require.NoError(t, err)

	var order []string
	for _, it := range res.Items {
		order = append(order, it.TurnUID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, completed)
	assert.Equal(t, 4, res.Metrics.NumTurns)
}

func TestRun_AbortStopsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	turns := []models.Turn{{TurnUID: "a"}, {TurnUID: "b"}, {TurnUID: "c"}}
	a := fakeAgent{fail: map[string]error{"b": boom}}

	var events []EventType
	r := NewRunner(a, sqlexec.SQLiteOpener{})
	r.OnProgress(func(ev ProgressEvent) { events = append(events, ev.EventType) })

	res, err := r.Run(context.Background(), "exp", turns)
	require.Error(t, err)
	assert.Nil(t, res)

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, "b", turnErr.TurnUID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, EventRunStopped, events[len(events)-1])
	assert.NotContains(t, events, EventRunComplete)
}

func TestRun_SkipRecordsFailureAndExcludesIt(t *testing.T) {
	db := sqlexectest.Students(t)
	turns := []models.Turn{
		{TurnUID: "ok", Text: "q", DBFile: db, GoldSQL: "SELECT COUNT(*) FROM students"},
		{TurnUID: "bad", Text: "q", DBFile: db, GoldSQL: "SELECT COUNT(*) FROM students"},
	}
	tr, err := oracle.NewScripted(oracle.Script{Turns: map[string][]any{
		"ok":  {countQuery, finalFive},
		"bad": {"this is not json"},
	}})
	require.NoError(t, err)
	a := agent.NewController(oracle.NewClient(tr), sqlexec.SQLiteOpener{})

	res, err := NewRunner(a, sqlexec.SQLiteOpener{}, WithOnError(config.OnErrorSkip)).Run(context.Background(), "exp", turns)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Empty(t, res.Items[0].Error)
	assert.NotEmpty(t, res.Items[1].Error)
	assert.Equal(t, models.VerdictNotComparable, res.Items[1].Verdict)
	assert.Equal(t, "bad", res.Items[1].TurnUID)
	assert.Equal(t, 1, res.Metrics.Errors)
	assert.Equal(t, 1, res.Metrics.Comparable)
	require.NotNil(t, res.Metrics.Accuracy)
	assert.Equal(t, 1.0, *res.Metrics.Accuracy)
}

func TestRun_ParentCancelAbortsEvenUnderSkip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	turns := []models.Turn{{TurnUID: "a"}}
	a := fakeAgent{delay: map[string]time.Duration{"a": time.Second}}

	_, err := NewRunner(a, sqlexec.SQLiteOpener{}, WithOnError(config.OnErrorSkip)).Run(ctx, "exp", turns)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_MissingDatabaseIsConnectError(t *testing.T) {
	turns := []models.Turn{{TurnUID: "t1", Text: "q", DBFile: "missing.sqlite", GoldSQL: "SELECT 1"}}
	a := scriptedAgent(t, map[string][]any{"t1": {finalFive}})

	_, err := NewRunner(a, sqlexec.SQLiteOpener{Root: t.TempDir()}).Run(context.Background(), "exp", turns)
	var connErr *sqlexec.ConnectError
	require.ErrorAs(t, err, &connErr)
}

func TestRun_WritesTranscripts(t *testing.T) {
	db := sqlexectest.Students(t)
	dir := t.TempDir()
	turns := []models.Turn{{TurnUID: "t1", Text: "q", DBFile: db, GoldSQL: "SELECT COUNT(*) FROM students"}}
	a := scriptedAgent(t, map[string][]any{"t1": {countQuery, finalFive}})
	clock := func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	_, err := NewRunner(a, sqlexec.SQLiteOpener{}, WithTranscriptDir(dir), WithClock(clock)).Run(context.Background(), "exp", turns)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^t1-20250301-(115959|120000)\.json$`, entries[0].Name())
}

func TestRun_ConfigSnapshotAndEvents(t *testing.T) {
	var events []EventType
	r := NewRunner(fakeAgent{}, sqlexec.SQLiteOpener{}, WithConfigSnapshot(map[string]any{"experiment_name": "exp"}))
	r.OnProgress(func(ev ProgressEvent) { events = append(events, ev.EventType) })

	res, err := r.Run(context.Background(), "exp", []models.Turn{{TurnUID: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "exp", res.Config["experiment_name"])
	assert.Equal(t, []EventType{EventRunStart, EventTurnStart, EventTurnComplete, EventRunComplete}, events)
	assert.Nil(t, res.Metrics.Accuracy)
}
