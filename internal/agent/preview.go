package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spboyer/sqleval/internal/models"
)

const (
	DefaultPreviewRows      = 20
	DefaultPreviewCellChars = 200
)

// PreviewLimits bounds how much of each step's result set is shown to the
// oracle.
type PreviewLimits struct {
	Rows      int
	CellChars int
}

type stepPreview struct {
	Step      int                    `json:"step"`
	Reasoning string                 `json:"reasoning"`
	SQL       string                 `json:"sql"`
	Status    models.ExecutionStatus `json:"status"`
	Success   bool                   `json:"success"`
	Error     *string                `json:"error"`
	Results   [][]string             `json:"results"`
}

// SerializeSteps renders steps as the compact JSON array embedded in prompts.
func SerializeSteps(steps []models.Step, limits PreviewLimits) string {
	out := make([]stepPreview, 0, len(steps))
	for i, s := range steps {
		p := stepPreview{Step: i + 1, Reasoning: s.Reasoning, SQL: s.SQL, Results: [][]string{}}
		if s.Execution != nil {
			p.Status = s.Execution.Status
			p.Success = s.Execution.Success
			if s.Execution.Error != "" {
				msg := s.Execution.Error
				p.Error = &msg
			}
			p.Results = previewRows(s.Execution.Results, limits)
		}
		out = append(out, p)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func previewRows(rows []models.Row, limits PreviewLimits) [][]string {
	n := len(rows)
	if limits.Rows >= 0 && n > limits.Rows {
		n = limits.Rows
	}
	out := make([][]string, 0, n)
	for _, row := range rows[:n] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = truncateCell(cellString(v), limits.CellChars)
		}
		out = append(out, cells)
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func truncateCell(s string, limit int) string {
	if limit < 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
