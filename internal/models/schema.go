package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Table is one table of a database schema with its columns in declaration order.
type Table struct {
	Name    string
	Columns []string
}

// Schema is an ordered mapping from table name to column names. It marshals
// to a JSON object whose keys keep the table order.
type Schema []Table

// Columns returns the column list for a table, or nil when absent.
func (s Schema) Columns(table string) []string {
	for _, t := range s {
		if t.Name == table {
			return t.Columns
		}
	}
	return nil
}

func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(t.Name)
		if err != nil {
			return nil, err
		}
		cols := t.Columns
		if cols == nil {
			cols = []string{}
		}
		val, err := json.Marshal(cols)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schema: expected object, got %v", tok)
	}
	var out Schema
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("schema: expected table name, got %v", tok)
		}
		var cols []string
		if err := dec.Decode(&cols); err != nil {
			return fmt.Errorf("schema: table %q: %w", name, err)
		}
		out = append(out, Table{Name: name, Columns: cols})
	}
	*s = out
	return nil
}
