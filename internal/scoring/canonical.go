// Package scoring compares predicted and reference result sets.
package scoring

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spboyer/sqleval/internal/models"
)

// FormatValue renders one scalar deterministically. The rendering keeps the
// value's type visible: the integer 5 and the real 5.0 render differently,
// strings are quoted. Booleans render as SQLite stores them, 1 and 0.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return strconv.Quote(x)
	case []byte:
		return "b" + strconv.Quote(string(x))
	case time.Time:
		return strconv.Quote(x.UTC().Format(time.RFC3339Nano))
	case models.Row:
		return FormatRow(x)
	case []any:
		return FormatRow(x)
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatRow renders a tuple as "(v1, v2, ...)".
func FormatRow[T ~[]any](row T) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(FormatValue(v))
	}
	b.WriteByte(')')
	return b.String()
}

// Canonicalize renders every row and sorts the renderings, giving a form
// that is independent of row order but keeps duplicates.
func Canonicalize(rows []models.Row) []string {
	out := render(rows)
	slices.Sort(out)
	return out
}

// Equal reports whether two result sets match. Order-insensitive comparison
// treats them as multisets of rows.
func Equal(pred, gold []models.Row, orderInsensitive bool) bool {
	if len(pred) != len(gold) {
		return false
	}
	if orderInsensitive {
		return slices.Equal(Canonicalize(pred), Canonicalize(gold))
	}
	return slices.Equal(render(pred), render(gold))
}

func render(rows []models.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = FormatRow(r)
	}
	return out
}
