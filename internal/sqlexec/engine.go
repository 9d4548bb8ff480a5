// Package sqlexec runs admitted SQL against SQLite databases under a wall
// clock budget and reports the result as a models.Outcome.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/spboyer/sqleval/internal/guard"
	"github.com/spboyer/sqleval/internal/models"
)

// ErrMultipleStatements is reported for batches. The driver would otherwise
// run every statement of the batch, so a batch never reaches the backend.
var ErrMultipleStatements = errors.New("multiple statements are not supported")

// Queryer is the subset of *sql.Conn and *sql.DB the engine needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execute runs query on q and materialises every row. The caller must have
// already admitted query with the guard; use Guarded otherwise.
//
// When maxDuration is positive the query runs under a deadline computed once
// from the start time. The driver interrupts the VM when that deadline
// passes, and the derived context is released before Execute returns so no
// interrupt can reach a later query on the same connection.
func Execute(ctx context.Context, q Queryer, query string, maxDuration time.Duration) models.Outcome {
	start := time.Now()
	return execute(ctx, q, query, maxDuration, start)
}

// Guarded applies the read-only policy and then Execute.
func Guarded(ctx context.Context, q Queryer, query string, maxDuration time.Duration) models.Outcome {
	start := time.Now()
	if err := guard.Check(query); err != nil {
		slog.Debug("Statement rejected", "error", err)
		return models.Outcome{
			Status:    models.StatusRejectedByPolicy,
			ElapsedMs: since(start),
			Results:   []models.Row{},
			Error:     guard.RejectionMessage,
		}
	}
	return execute(ctx, q, query, maxDuration, start)
}

func execute(ctx context.Context, q Queryer, query string, maxDuration time.Duration, start time.Time) models.Outcome {
	if guard.HasMultipleStatements(query) {
		out := failed(start, ErrMultipleStatements)
		out.Executed = false
		return out
	}

	qctx := ctx
	if maxDuration > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithDeadline(ctx, start.Add(maxDuration))
		defer cancel()
	}

	rows, err := collect(qctx, q, query)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return failed(start, fmt.Errorf("execution cancelled: %w", ctx.Err()))
		case isTimeout(qctx, err):
			slog.Debug("Statement timed out", "budget", maxDuration)
			return models.Outcome{
				Executed:  true,
				Status:    models.StatusTimedOut,
				ElapsedMs: since(start),
				Results:   []models.Row{},
				Error:     fmt.Sprintf("interrupted: execution exceeded %s", maxDuration),
			}
		default:
			return failed(start, err)
		}
	}

	return models.Outcome{
		Executed:  true,
		Success:   true,
		Status:    models.StatusSuccess,
		ElapsedMs: since(start),
		Results:   rows,
	}
}

func collect(ctx context.Context, q Queryer, query string) ([]models.Row, error) {
	rs, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	out := []models.Row{}
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(vals))
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isTimeout(qctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrInterrupt {
		return errors.Is(qctx.Err(), context.DeadlineExceeded)
	}
	return false
}

func failed(start time.Time, err error) models.Outcome {
	return models.Outcome{
		Executed:  true,
		Status:    models.StatusFailed,
		ElapsedMs: since(start),
		Results:   []models.Row{},
		Error:     err.Error(),
	}
}

func since(start time.Time) *float64 {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	return &ms
}
