package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spboyer/sqleval/internal/models"
)

// Record is a single CSV row keyed by column name.
type Record map[string]string

// LoadCSV reads a CSV file with a header row.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv: %s is empty (no header row)", path)
	}

	headers := records[0]
	for i, h := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	out := make([]Record, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Record, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		out = append(out, row)
	}
	return out, nil
}

// LoadCSVRange keeps data rows start..end (1-based, inclusive), clamping
// end to the rows available.
func LoadCSVRange(path string, start, end int) ([]Record, error) {
	if start < 1 {
		return nil, fmt.Errorf("csv: range start must be >= 1, got %d", start)
	}
	if end < start {
		return nil, fmt.Errorf("csv: range end (%d) must be >= start (%d)", end, start)
	}

	all, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	if start > len(all) {
		return []Record{}, nil
	}
	return all[start-1 : min(end, len(all))], nil
}

// TurnsFromRecords maps CSV records onto turns. Recognised columns are
// id (or turn_uid), text (or question), db_file, gold_sql, difficulty,
// dataset, split, db_id, conversation_id and turn_index; others are
// ignored. Each record must carry an id and a question.
func TurnsFromRecords(records []Record) ([]models.Turn, error) {
	turns := make([]models.Turn, 0, len(records))
	seen := map[string]bool{}
	for i, r := range records {
		line := i + 2
		uid := first(r, "turn_uid", "id")
		if uid == "" {
			return nil, fmt.Errorf("csv: row %d has no id", line)
		}
		if seen[uid] {
			return nil, fmt.Errorf("csv: row %d repeats id %q", line, uid)
		}
		seen[uid] = true

		text := first(r, "text", "question")
		if text == "" {
			return nil, fmt.Errorf("csv: row %d (%s) has no question text", line, uid)
		}

		t := models.Turn{
			TurnUID:        uid,
			Dataset:        or(first(r, "dataset"), "csv"),
			Split:          or(first(r, "split"), "test"),
			ConversationID: or(first(r, "conversation_id"), uid),
			DBID:           first(r, "db_id"),
			DBFile:         first(r, "db_file"),
			Dialect:        "sqlite",
			Text:           text,
			Context:        []models.ContextEvent{},
			ContextGoldSQL: []string{},
			GoldSQL:        first(r, "gold_sql"),
			Difficulty:     first(r, "difficulty"),
		}
		if idx := first(r, "turn_index"); idx != "" {
			n, err := strconv.Atoi(idx)
			if err != nil {
				return nil, fmt.Errorf("csv: row %d turn_index %q: %w", line, idx, err)
			}
			t.TurnIndex = n
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// LoadTurnsCSV reads a CSV suite of hand-written turns.
func LoadTurnsCSV(path string) ([]models.Turn, error) {
	records, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return TurnsFromRecords(records)
}

func first(r Record, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
