// Package orchestration runs an experiment: every turn through the agent,
// the reference query beside it, and the scoring of both.
package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spboyer/sqleval/internal/config"
	"github.com/spboyer/sqleval/internal/dataset"
	"github.com/spboyer/sqleval/internal/metrics"
	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/scoring"
	"github.com/spboyer/sqleval/internal/sqlexec"
	"github.com/spboyer/sqleval/internal/transcript"
	"golang.org/x/sync/errgroup"
)

// Agent answers one turn. *agent.Controller satisfies it.
type Agent interface {
	Run(ctx context.Context, turn *models.Turn) (*models.Transcript, error)
}

// TurnError is a hard failure of one turn.
type TurnError struct {
	TurnUID string
	Err     error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %s: %v", e.TurnUID, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// ProgressListener receives progress updates. Listeners may be called from
// several goroutines at once when the runner is parallel.
type ProgressListener func(event ProgressEvent)

type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventRunStopped   EventType = "run_stopped"
	EventTurnStart    EventType = "turn_start"
	EventTurnComplete EventType = "turn_complete"
)

type ProgressEvent struct {
	EventType  EventType
	TurnUID    string
	TurnNum    int
	TotalTurns int
	Verdict    models.VerdictStatus
	DurationMs float64
	Error      string
	Details    map[string]any
}

type RunnerOption func(*Runner)

// WithTimeout sets the budget for each reference execution.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

func WithOrderInsensitive(on bool) RunnerOption {
	return func(r *Runner) { r.orderInsensitive = on }
}

// WithOnError picks the hard failure policy, config.OnErrorAbort or
// config.OnErrorSkip.
func WithOnError(policy string) RunnerOption {
	return func(r *Runner) { r.onError = policy }
}

// WithWorkers bounds how many turns run at once.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) { r.workers = max(n, 1) }
}

// WithTranscriptDir enables per-turn transcript files.
func WithTranscriptDir(dir string) RunnerOption {
	return func(r *Runner) { r.transcriptDir = dir }
}

// WithConfigSnapshot records the configuration in the result.
func WithConfigSnapshot(cfg map[string]any) RunnerOption {
	return func(r *Runner) { r.configSnapshot = cfg }
}

// WithBootstrapSeed fixes the accuracy interval resampling.
func WithBootstrapSeed(seed int64) RunnerOption {
	return func(r *Runner) { r.seed = seed }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// Runner evaluates turns and aggregates the results.
type Runner struct {
	agent            Agent
	opener           sqlexec.Opener
	timeout          time.Duration
	orderInsensitive bool
	onError          string
	workers          int
	transcriptDir    string
	configSnapshot   map[string]any
	seed             int64
	now              func() time.Time

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// NewRunner builds a runner. opener serves the reference executions and
// should resolve locators the same way as the agent's opener.
func NewRunner(a Agent, opener sqlexec.Opener, opts ...RunnerOption) *Runner {
	r := &Runner{
		agent:            a,
		opener:           opener,
		timeout:          time.Duration(config.DefaultTimeoutMs) * time.Millisecond,
		orderInsensitive: true,
		onError:          config.DefaultOnError,
		workers:          config.DefaultWorkers,
		seed:             -1,
		now:              time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnProgress registers a progress listener.
func (r *Runner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Runner) notifyProgress(event ProgressEvent) {
	r.progressMu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Run evaluates turns in order and returns the experiment result. Records
// keep the input order whatever the completion order. Under the abort
// policy the first hard failure stops the run and is returned as a
// *TurnError; under skip it is recorded on the turn.
func (r *Runner) Run(ctx context.Context, name string, turns []models.Turn) (*models.ExperimentResult, error) {
	started := r.now().UTC()
	result := &models.ExperimentResult{
		ExperimentName: name,
		RunID:          uuid.NewString(),
		StartedAt:      started,
		Config:         r.configSnapshot,
		DataSummary:    dataset.Summarize(turns),
	}
	total := len(turns)
	slog.Info("Starting experiment", "experiment", name, "run_id", result.RunID, "turns", total, "workers", r.workers)
	r.notifyProgress(ProgressEvent{EventType: EventRunStart, TotalTurns: total})

	records := make([]models.TurnRecord, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i := range turns {
		if gctx.Err() != nil {
			break
		}
		turn := &turns[i]
		g.Go(func() error {
			r.notifyProgress(ProgressEvent{EventType: EventTurnStart, TurnUID: turn.TurnUID, TurnNum: i + 1, TotalTurns: total})

			rec, err := r.evaluate(gctx, turn)
			if err != nil {
				if r.onError != config.OnErrorSkip || ctx.Err() != nil {
					return &TurnError{TurnUID: turn.TurnUID, Err: err}
				}
				slog.Warn("Skipping failed turn", "turn", turn.TurnUID, "error", err)
				rec.Error = err.Error()
			}
			records[i] = rec
			r.writeTranscript(rec)

			r.notifyProgress(ProgressEvent{
				EventType:  EventTurnComplete,
				TurnUID:    turn.TurnUID,
				TurnNum:    i + 1,
				TotalTurns: total,
				Verdict:    rec.Verdict,
				DurationMs: rec.AgentWallMs,
				Error:      rec.Error,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.notifyProgress(ProgressEvent{
			EventType:  EventRunStopped,
			TotalTurns: total,
			Error:      err.Error(),
		})
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Items = records
	result.Metrics = metrics.Aggregate(records, metrics.Options{Seed: r.seed})
	result.FinishedAt = r.now().UTC()

	slog.Info("Experiment complete",
		"experiment", name,
		"comparable", result.Metrics.Comparable,
		"matches", result.Metrics.Matches,
		"errors", result.Metrics.Errors,
	)
	r.notifyProgress(ProgressEvent{
		EventType:  EventRunComplete,
		TotalTurns: total,
		DurationMs: float64(result.FinishedAt.Sub(started).Microseconds()) / 1000,
		Details: map[string]any{
			"accuracy":   result.Metrics.Accuracy,
			"comparable": result.Metrics.Comparable,
			"matches":    result.Metrics.Matches,
		},
	})
	return result, nil
}

// evaluate always returns a record carrying the turn identity, even on error.
func (r *Runner) evaluate(ctx context.Context, turn *models.Turn) (models.TurnRecord, error) {
	rec := models.TurnRecord{
		TurnUID:    turn.TurnUID,
		DBFile:     turn.DBFile,
		Question:   turn.Text,
		GoldSQL:    turn.GoldSQL,
		Difficulty: turn.Difficulty,
		Verdict:    models.VerdictNotComparable,
	}

	agentStart := time.Now()
	tr, err := r.agent.Run(ctx, turn)
	rec.AgentWallMs = float64(time.Since(agentStart).Microseconds()) / 1000
	if err != nil {
		return rec, err
	}
	rec.AgentResult = tr

	var pred *models.Outcome
	if last, ok := tr.Last(); ok {
		rec.PredSQL = last.SQL
		pred = last.Execution
	}
	rec.PredExecution = pred

	var gold *models.Outcome
	attempted := turn.HasReference()
	if attempted {
		gold, err = r.reference(ctx, turn)
		if err != nil {
			return rec, err
		}
	}
	rec.GoldExecution = gold

	v := scoring.Compare(pred, gold, attempted, r.orderInsensitive)
	rec.Verdict = v.Status
	rec.ResultsMatch = v.Match()
	rec.PredQueryTimeMs = v.PredElapsedMs
	rec.GoldQueryTimeMs = v.GoldElapsedMs
	rec.QueryTimeDeltaMs = v.DeltaMs

	slog.Debug("Scored turn", "turn", turn.TurnUID, "verdict", v.Status, "steps", tr.Len())
	return rec, nil
}

// reference runs the gold SQL on a connection of its own.
func (r *Runner) reference(ctx context.Context, turn *models.Turn) (*models.Outcome, error) {
	conn, err := r.opener.Open(ctx, turn.DBFile)
	if err != nil {
		return nil, err
	}
	out := sqlexec.Guarded(ctx, conn, turn.GoldSQL, r.timeout)
	if cerr := conn.Close(); cerr != nil {
		slog.Warn("failed to close reference database", "turn", turn.TurnUID, "error", cerr)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("reference execution cancelled: %w", ctx.Err())
	}
	return &out, nil
}

func (r *Runner) writeTranscript(rec models.TurnRecord) {
	if r.transcriptDir == "" {
		return
	}
	started := r.now().Add(-time.Duration(rec.AgentWallMs * float64(time.Millisecond)))
	if _, err := transcript.Write(r.transcriptDir, transcript.Build(rec, started)); err != nil {
		slog.Warn("failed to write transcript", "turn", rec.TurnUID, "error", err)
	}
}
