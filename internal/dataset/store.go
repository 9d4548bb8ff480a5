// Package dataset reads and writes the normalised turn store.
package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spboyer/sqleval/internal/models"
)

const turnsDDL = `
CREATE TABLE IF NOT EXISTS turns (
	turn_uid TEXT PRIMARY KEY,
	dataset TEXT NOT NULL,
	split TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	turn_index INTEGER NOT NULL,
	db_id TEXT,
	db_file TEXT,
	dialect TEXT,
	text TEXT,
	context TEXT,
	context_gold_sql TEXT,
	gold_sql TEXT,
	difficulty TEXT
);
CREATE INDEX IF NOT EXISTS idx_dataset ON turns(dataset);
CREATE INDEX IF NOT EXISTS idx_db_id ON turns(db_id);
CREATE INDEX IF NOT EXISTS idx_conversation ON turns(conversation_id);
`

const turnColumns = `turn_uid, dataset, split, conversation_id, turn_index, db_id, db_file,
	dialect, text, context, context_gold_sql, gold_sql, difficulty`

// Store is a handle on a turns database.
type Store struct {
	db   *sql.DB
	path string
}

// Filter narrows Load. Zero values mean "no filter".
type Filter struct {
	Source       string
	Split        string
	Limit        int
	MinTurnIndex *int
}

// Open opens an existing turn store read-only.
func Open(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("turn store not found at %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(abs)+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening turn store: %w", err)
	}
	return &Store{db: db, path: abs}, nil
}

// Create opens path for writing, creating the file and its schema when
// missing.
func Create(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating turn store directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening turn store: %w", err)
	}
	if _, err := db.ExecContext(ctx, turnsDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating turns table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the turns matching f ordered by turn uid.
func (s *Store) Load(ctx context.Context, f Filter) ([]models.Turn, error) {
	var (
		conds []string
		args  []any
	)
	if f.Source != "" {
		conds = append(conds, "dataset = ?")
		args = append(args, f.Source)
	}
	if f.Split != "" {
		conds = append(conds, "split = ?")
		args = append(args, f.Split)
	}
	if f.MinTurnIndex != nil {
		conds = append(conds, "turn_index >= ?")
		args = append(args, *f.MinTurnIndex)
	}

	query := "SELECT " + turnColumns + " FROM turns"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY turn_uid"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.query(ctx, query, args...)
}

// Get returns one turn, or nil when uid is unknown.
func (s *Store) Get(ctx context.Context, uid string) (*models.Turn, error) {
	turns, err := s.query(ctx, "SELECT "+turnColumns+" FROM turns WHERE turn_uid = ?", uid)
	if err != nil || len(turns) == 0 {
		return nil, err
	}
	return &turns[0], nil
}

// Conversation returns every turn of a conversation in turn order.
func (s *Store) Conversation(ctx context.Context, conversationID string) ([]models.Turn, error) {
	return s.query(ctx, "SELECT "+turnColumns+" FROM turns WHERE conversation_id = ? ORDER BY turn_index", conversationID)
}

// Save inserts or replaces turns in one transaction.
func (s *Store) Save(ctx context.Context, turns []models.Turn) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO turns ("+turnColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range turns {
		if t.TurnUID == "" {
			return errors.New("turn without turn_uid")
		}
		ctxJSON, err := json.Marshal(nonNil(t.Context))
		if err != nil {
			return err
		}
		goldJSON, err := json.Marshal(nonNil(t.ContextGoldSQL))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			t.TurnUID, t.Dataset, t.Split, t.ConversationID, t.TurnIndex,
			nullable(t.DBID), nullable(t.DBFile), nullable(t.Dialect), t.Text,
			string(ctxJSON), string(goldJSON), nullable(t.GoldSQL), nullable(t.Difficulty),
		); err != nil {
			return fmt.Errorf("saving turn %s: %w", t.TurnUID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var (
			t                                       models.Turn
			dbID, dbFile, dialect, text, gold, diff sql.NullString
			ctxJSON, goldCtxJSON                    sql.NullString
		)
		if err := rows.Scan(&t.TurnUID, &t.Dataset, &t.Split, &t.ConversationID, &t.TurnIndex,
			&dbID, &dbFile, &dialect, &text, &ctxJSON, &goldCtxJSON, &gold, &diff); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.DBID, t.DBFile, t.Dialect, t.Text = dbID.String, dbFile.String, dialect.String, text.String
		t.GoldSQL, t.Difficulty = gold.String, diff.String

		if err := decodeJSONColumn(ctxJSON, &t.Context); err != nil {
			return nil, fmt.Errorf("turn %s context: %w", t.TurnUID, err)
		}
		if err := decodeJSONColumn(goldCtxJSON, &t.ContextGoldSQL); err != nil {
			return nil, fmt.Errorf("turn %s context_gold_sql: %w", t.TurnUID, err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func decodeJSONColumn[T any](col sql.NullString, out *[]T) error {
	*out = []T{}
	if !col.Valid || strings.TrimSpace(col.String) == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Summarize counts turns per dataset and split and the distinct databases
// they target.
func Summarize(turns []models.Turn) models.DataSummary {
	sum := models.DataSummary{
		NumTurns: len(turns),
		Datasets: map[string]int{},
		Splits:   map[string]int{},
	}
	dbs := map[string]struct{}{}
	for _, t := range turns {
		if t.Dataset != "" {
			sum.Datasets[t.Dataset]++
		}
		if t.Split != "" {
			sum.Splits[t.Split]++
		}
		if t.DBFile != "" {
			dbs[t.DBFile] = struct{}{}
		}
	}
	sum.UniqueDBs = len(dbs)
	return sum
}
