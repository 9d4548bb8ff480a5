// Package sqlexectest builds small SQLite databases for tests.
package sqlexectest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// StudentsDDL creates the fixture used across packages: five students and a
// courses table.
const StudentsDDL = `
CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT NOT NULL, gpa REAL, enrolled BOOLEAN, photo BLOB);
INSERT INTO students (id, name, gpa, enrolled, photo) VALUES
  (1, 'Ada', 3.9, 1, x'00ff'),
  (2, 'Brian', 3.1, 0, NULL),
  (3, 'Chen', 3.5, 1, NULL),
  (4, 'Dana', NULL, 1, NULL),
  (5, 'Eve', 2.8, 0, NULL);
CREATE TABLE courses (code TEXT, title TEXT, credits INTEGER);
INSERT INTO courses VALUES ('CS101', 'Intro', 4), ('MA201', 'Algebra', 3);
`

// NewDB writes a database named name into a fresh temp dir, runs ddl on it
// and returns the file path.
func NewDB(t testing.TB, name, ddl string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(ddl)
	require.NoError(t, err)
	return path
}

// Students returns the path of a fresh students fixture.
func Students(t testing.TB) string {
	t.Helper()
	return NewDB(t, "school.db", StudentsDDL)
}
