package sqlexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/spboyer/sqleval/internal/models"
)

const listTablesQuery = `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`

// FetchSchema lists user tables ordered by name with their columns in
// declaration order. It issues internal catalog queries that bypass the
// guard.
func FetchSchema(ctx context.Context, q Queryer) (models.Schema, error) {
	rows, err := q.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		names = append(names, name)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	schema := make(models.Schema, 0, len(names))
	for _, name := range names {
		cols, err := tableColumns(ctx, q, name)
		if err != nil {
			return nil, fmt.Errorf("reading columns of %q: %w", name, err)
		}
		schema = append(schema, models.Table{Name: name, Columns: cols})
	}
	return schema, nil
}

func tableColumns(ctx context.Context, q Queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := []string{}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
