package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/oracle"
	"github.com/spboyer/sqleval/internal/sqlexec"
	"github.com/spboyer/sqleval/internal/sqlexec/sqlexectest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport wraps a scripted transport and keeps every request.
type recordingTransport struct {
	inner    oracle.Transport
	requests []oracle.Request
}

func (r *recordingTransport) Complete(ctx context.Context, req oracle.Request) (string, error) {
	r.requests = append(r.requests, req)
	return r.inner.Complete(ctx, req)
}

func newController(t *testing.T, replies []string, opts ...Option) (*Controller, *recordingTransport, *models.Turn) {
	t.Helper()
	rec := &recordingTransport{inner: oracle.Replies(replies...)}
	turn := &models.Turn{TurnUID: "t1", Text: "How many students are there?", DBFile: sqlexectest.Students(t)}
	return NewController(oracle.NewClient(rec), sqlexec.SQLiteOpener{}, opts...), rec, turn
}

func TestRun_QueryThenFinal(t *testing.T) {
	c, rec, turn := newController(t, []string{
		`{"action":"query","reasoning":"count rows","sql":"SELECT COUNT(*) FROM students"}`,
		`{"action":"final","final_answer":"5"}`,
	})

	tr, err := c.Run(context.Background(), turn)
	require.NoError(t, err)
	require.Equal(t, 1, tr.Len())
	assert.Equal(t, "5", tr.FinalAnswer())

	step, _ := tr.Last()
	assert.Equal(t, "count rows", step.Reasoning)
	require.NotNil(t, step.Execution)
	assert.Equal(t, models.StatusSuccess, step.Execution.Status)
	assert.Equal(t, []models.Row{{int64(5)}}, step.Execution.Results)

	require.Len(t, rec.requests, 2)
	assert.Contains(t, rec.requests[0].User, `"students":["id","name","gpa","enrolled","photo"]`)
	assert.Contains(t, rec.requests[0].User, "Previous steps:\n[]")
	assert.Contains(t, rec.requests[1].User, `"sql":"SELECT COUNT(*) FROM students"`)
	assert.Contains(t, rec.requests[1].User, `"results":[["5"]]`)
}

func TestRun_ExhaustsRoundsThenSummarizes(t *testing.T) {
	replies := []string{
		`{"action":"query","sql":"SELECT 1"}`,
		`{"action":"query","sql":"DELETE FROM students"}`,
		`{"action":"query","sql":"SELECT * FROM nope"}`,
		`{"final_answer":"gave up"}`,
	}
	var events []RoundEvent
	c, rec, turn := newController(t, replies, WithMaxSteps(3), WithObserver(func(ev RoundEvent) { events = append(events, ev) }))

	tr, err := c.Run(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, "gave up", tr.FinalAnswer())

	// max_steps planner calls plus exactly one summarization call.
	require.Len(t, rec.requests, 4)
	assert.Equal(t, oracle.FinalAnswerSystemPrompt, rec.requests[3].System)

	steps := tr.Steps()
	assert.Equal(t, models.StatusSuccess, steps[0].Execution.Status)
	assert.Equal(t, models.StatusRejectedByPolicy, steps[1].Execution.Status)
	assert.Equal(t, models.StatusFailed, steps[2].Execution.Status)

	require.Len(t, events, 4)
	assert.Equal(t, "summarize", events[3].Action)
	assert.Equal(t, 4, events[3].Round)
}

func TestRun_StopReasons(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		answer string
	}{
		{name: "invalid action", reply: `{"action":"shrug"}`, answer: InvalidActionAnswer},
		{name: "missing sql", reply: `{"action":"query","reasoning":"?"}`, answer: MissingSQLAnswer},
		{name: "blank sql", reply: `{"action":"query","sql":"   "}`, answer: MissingSQLAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec, turn := newController(t, []string{tt.reply})
			tr, err := c.Run(context.Background(), turn)
			require.NoError(t, err)
			assert.Equal(t, 0, tr.Len())
			assert.Equal(t, tt.answer, tr.FinalAnswer())
			assert.Len(t, rec.requests, 1)
		})
	}
}

func TestRun_ZeroRoundsSummarizesImmediately(t *testing.T) {
	c, rec, turn := newController(t, []string{`{"final_answer":"no idea"}`}, WithMaxSteps(0))
	tr, err := c.Run(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, "no idea", tr.FinalAnswer())
	assert.Len(t, rec.requests, 1)
}

func TestRun_ProtocolErrorIsFatal(t *testing.T) {
	c, _, turn := newController(t, []string{
		`{"action":"query","sql":"SELECT 1"}`,
		`not json at all`,
	})
	tr, err := c.Run(context.Background(), turn)
	require.Error(t, err)
	assert.Nil(t, tr)
	var pe *oracle.ProtocolError
	assert.True(t, errors.As(err, &pe))
}

func TestRun_ConnectError(t *testing.T) {
	c, rec, turn := newController(t, nil)
	turn.DBFile = "/does/not/exist.db"
	_, err := c.Run(context.Background(), turn)
	var ce *sqlexec.ConnectError
	require.True(t, errors.As(err, &ce))
	assert.Empty(t, rec.requests)
}

type failingClose struct {
	sqlexec.Handle
	err error
}

func (f failingClose) Close() error {
	_ = f.Handle.Close()
	return f.err
}

type closeFailOpener struct {
	err error
}

func (o closeFailOpener) Open(ctx context.Context, locator string) (sqlexec.Handle, error) {
	h, err := sqlexec.SQLiteOpener{}.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	return failingClose{Handle: h, err: o.err}, nil
}

func TestRun_CloseErrorReportedWhenNothingElseFailed(t *testing.T) {
	closeErr := errors.New("disk vanished")
	turn := &models.Turn{TurnUID: "t1", DBFile: sqlexectest.Students(t)}
	c := NewController(oracle.NewClient(oracle.Replies(`{"action":"final","final_answer":"x"}`)), closeFailOpener{err: closeErr})

	tr, err := c.Run(context.Background(), turn)
	require.ErrorIs(t, err, closeErr)
	assert.Nil(t, tr)
}

func TestRun_CloseErrorNeverMasksOracleError(t *testing.T) {
	closeErr := errors.New("disk vanished")
	turn := &models.Turn{TurnUID: "t1", DBFile: sqlexectest.Students(t)}
	c := NewController(oracle.NewClient(oracle.Replies(`{{{`)), closeFailOpener{err: closeErr})

	_, err := c.Run(context.Background(), turn)
	require.Error(t, err)
	assert.NotErrorIs(t, err, closeErr)
	var pe *oracle.ProtocolError
	assert.True(t, errors.As(err, &pe))
}

func TestSerializeSteps_Truncates(t *testing.T) {
	rows := make([]models.Row, 30)
	for i := range rows {
		rows[i] = models.Row{int64(i), strings.Repeat("x", 250), nil}
	}
	steps := []models.Step{{Reasoning: "r", SQL: "SELECT", Execution: &models.Outcome{Executed: true, Success: true, Status: models.StatusSuccess, Results: rows}}}

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(SerializeSteps(steps, PreviewLimits{Rows: DefaultPreviewRows, CellChars: DefaultPreviewCellChars})), &got))
	require.Len(t, got, 1)
	assert.EqualValues(t, 1, got[0]["step"])
	assert.Nil(t, got[0]["error"])
	results := got[0]["results"].([]any)
	require.Len(t, results, 20)
	first := results[0].([]any)
	assert.Equal(t, "0", first[0])
	assert.Equal(t, strings.Repeat("x", 200)+"...", first[1])
	assert.Equal(t, "NULL", first[2])
}

func TestSerializeSteps_Empty(t *testing.T) {
	assert.Equal(t, "[]", SerializeSteps(nil, PreviewLimits{}))

	out := SerializeSteps([]models.Step{{SQL: "DROP", Execution: &models.Outcome{Status: models.StatusRejectedByPolicy, Error: "Query rejected by read-only policy", Results: []models.Row{}}}}, PreviewLimits{Rows: 5, CellChars: 5})
	assert.Contains(t, out, `"error":"Query rejected by read-only policy"`)
	assert.Contains(t, out, `"status":"rejected_by_policy"`)
}
