// Package agent runs the bounded plan/execute loop for one turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spboyer/sqleval/internal/models"
	"github.com/spboyer/sqleval/internal/oracle"
	"github.com/spboyer/sqleval/internal/sqlexec"
)

const DefaultMaxSteps = 4

// Answers recorded when the loop stops on a reply it cannot act on.
const (
	InvalidActionAnswer = "Agent returned an invalid action."
	MissingSQLAnswer    = "Agent did not provide SQL to execute."
)

// Oracle is the planner the controller consults each round.
type Oracle interface {
	Plan(ctx context.Context, in oracle.PlannerInput) (oracle.Action, error)
	Summarize(ctx context.Context, in oracle.FinalInput) (string, error)
}

// RoundEvent describes one completed round.
type RoundEvent struct {
	TurnUID string
	Round   int
	Action  string
	SQL     string
	Outcome *models.Outcome
}

// Observer receives a RoundEvent after every round. It is called from the
// goroutine running the turn.
type Observer func(RoundEvent)

// Controller alternates oracle planning with guarded execution against the
// turn's database, for at most MaxSteps rounds.
type Controller struct {
	oracle   Oracle
	opener   sqlexec.Opener
	maxSteps int
	timeout  time.Duration
	preview  PreviewLimits
	observer Observer
}

type Option func(*Controller)

// WithMaxSteps bounds the number of query rounds.
func WithMaxSteps(n int) Option {
	return func(c *Controller) { c.maxSteps = n }
}

// WithTimeout sets the per-execution budget; zero or negative is unlimited.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithPreview bounds the step results shown to the oracle.
func WithPreview(limits PreviewLimits) Option {
	return func(c *Controller) { c.preview = limits }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

func NewController(o Oracle, opener sqlexec.Opener, opts ...Option) *Controller {
	c := &Controller{
		oracle:   o,
		opener:   opener,
		maxSteps: DefaultMaxSteps,
		preview:  PreviewLimits{Rows: DefaultPreviewRows, CellChars: DefaultPreviewCellChars},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run answers turn. Oracle and transport errors are returned unretried and
// abort the run; execution problems are recorded in the transcript instead.
// The connection is closed on every path and a close failure is reported
// only when nothing else went wrong.
func (c *Controller) Run(ctx context.Context, turn *models.Turn) (tr *models.Transcript, err error) {
	conn, err := c.opener.Open(ctx, turn.DBFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		cerr := conn.Close()
		if cerr == nil {
			return
		}
		if err != nil {
			slog.Warn("failed to close database", "turn", turn.TurnUID, "error", cerr)
			return
		}
		tr, err = nil, fmt.Errorf("closing database: %w", cerr)
	}()

	schema, err := sqlexec.FetchSchema(ctx, conn)
	if err != nil {
		return nil, &sqlexec.ConnectError{Locator: turn.DBFile, Err: err}
	}

	var (
		steps  []models.Step
		answer string
		done   bool
	)

	for round := 1; round <= c.maxSteps && !done; round++ {
		action, err := c.oracle.Plan(ctx, oracle.PlannerInput{
			TurnUID:  turn.TurnUID,
			Question: turn.Text,
			Schema:   schema,
			Context:  turn.Context,
			Steps:    SerializeSteps(steps, c.preview),
		})
		if err != nil {
			return nil, err
		}

		ev := RoundEvent{TurnUID: turn.TurnUID, Round: round}
		switch a := action.(type) {
		case oracle.Final:
			ev.Action = "final"
			answer, done = a.Answer, true
		case oracle.Query:
			ev.Action = "query"
			if a.SQL == "" {
				answer, done = MissingSQLAnswer, true
				break
			}
			out := sqlexec.Guarded(ctx, conn, a.SQL, c.timeout)
			steps = append(steps, models.Step{Reasoning: a.Reasoning, SQL: a.SQL, Execution: &out})
			ev.SQL, ev.Outcome = a.SQL, &out
			slog.Debug("Executed step", "turn", turn.TurnUID, "round", round, "status", out.Status)
		default:
			ev.Action = "invalid"
			answer, done = InvalidActionAnswer, true
		}
		c.notify(ev)
	}

	if !done {
		answer, err = c.oracle.Summarize(ctx, oracle.FinalInput{
			TurnUID:  turn.TurnUID,
			Question: turn.Text,
			Steps:    SerializeSteps(steps, c.preview),
		})
		if err != nil {
			return nil, err
		}
		c.notify(RoundEvent{TurnUID: turn.TurnUID, Round: c.maxSteps + 1, Action: "summarize"})
	}

	return models.NewTranscript(steps, answer), nil
}

func (c *Controller) notify(ev RoundEvent) {
	if c.observer != nil {
		c.observer(ev)
	}
}
