// Package transcript writes one JSON file per evaluated turn.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spboyer/sqleval/internal/models"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.Trim(unsafeChars.ReplaceAllString(s, "_"), "_")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// Filename returns the transcript filename for a turn.
func Filename(turnUID string, ts time.Time) string {
	return fmt.Sprintf("%s-%s.json", sanitizeName(turnUID), ts.UTC().Format("20060102-150405"))
}

// TurnTranscript is the on-disk form of one turn's agent session.
type TurnTranscript struct {
	TurnUID     string               `json:"turn_uid"`
	Question    string               `json:"question"`
	DBFile      string               `json:"db_file"`
	GoldSQL     string               `json:"gold_sql"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
	DurationMs  float64              `json:"duration_ms"`
	Verdict     models.VerdictStatus `json:"verdict"`
	Agent       *models.Transcript   `json:"agent"`
	Error       string               `json:"error,omitempty"`
}

// Build assembles a TurnTranscript from a finished record.
func Build(rec models.TurnRecord, startedAt time.Time) *TurnTranscript {
	completed := startedAt.Add(time.Duration(rec.AgentWallMs * float64(time.Millisecond)))
	return &TurnTranscript{
		TurnUID:     rec.TurnUID,
		Question:    rec.Question,
		DBFile:      rec.DBFile,
		GoldSQL:     rec.GoldSQL,
		StartedAt:   startedAt,
		CompletedAt: completed,
		DurationMs:  rec.AgentWallMs,
		Verdict:     rec.Verdict,
		Agent:       rec.AgentResult,
		Error:       rec.Error,
	}
}

// Write serializes t into dir and returns the file path.
func Write(dir string, t *TurnTranscript) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	path := filepath.Join(dir, Filename(t.TurnUID, t.StartedAt))

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	return path, nil
}
