package orchestration

import (
	"fmt"
	"path/filepath"

	"github.com/spboyer/sqleval/internal/models"
)

// FilterTurns returns the turns whose TurnUID or DBID matches at least one of
// the glob patterns. No patterns returns turns unchanged.
func FilterTurns(turns []models.Turn, patterns []string) ([]models.Turn, error) {
	if len(patterns) == 0 {
		return turns, nil
	}

	var matched []models.Turn
	for _, t := range turns {
		ok, err := matchesAny(t, patterns)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

func matchesAny(t models.Turn, patterns []string) (bool, error) {
	for _, p := range patterns {
		for _, field := range []string{t.TurnUID, t.DBID} {
			if field == "" {
				continue
			}
			ok, err := filepath.Match(p, field)
			if err != nil {
				return false, fmt.Errorf("invalid turn filter pattern %q: %w", p, err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}
