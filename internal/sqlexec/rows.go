package sqlexec

import "github.com/spboyer/sqleval/internal/models"

// normalizeRow converts driver values into the scalar set models.Row
// documents. BLOB and TEXT values the driver hands back as bytes become
// strings; everything else already is a plain scalar.
func normalizeRow(vals []any) models.Row {
	row := make(models.Row, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case []byte:
			row[i] = string(x)
		case int:
			row[i] = int64(x)
		case int32:
			row[i] = int64(x)
		case float32:
			row[i] = float64(x)
		default:
			row[i] = v
		}
	}
	return row
}
