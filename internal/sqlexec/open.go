package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	// registers the "sqlite3" driver
	_ "github.com/mattn/go-sqlite3"
)

// Handle is one open database connection.
type Handle interface {
	Queryer
	io.Closer
}

// Opener resolves a database locator and opens it read-only.
type Opener interface {
	Open(ctx context.Context, locator string) (Handle, error)
}

// ConnectError is returned when a target database cannot be opened.
type ConnectError struct {
	Locator string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("opening database %q: %v", e.Locator, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SQLiteOpener opens SQLite files. Relative locators are resolved against
// Root; an empty Root means the working directory.
type SQLiteOpener struct {
	Root string
}

// Resolve returns the absolute path for locator.
func (o SQLiteOpener) Resolve(locator string) (string, error) {
	if locator == "" {
		return "", errors.New("empty database locator")
	}
	p := locator
	if !filepath.IsAbs(p) {
		p = filepath.Join(o.Root, p)
	}
	return filepath.Abs(p)
}

// Open opens locator in read-only, query-only mode and pins a single
// connection from the pool for the caller.
func (o SQLiteOpener) Open(ctx context.Context, locator string) (Handle, error) {
	path, err := o.Resolve(locator)
	if err != nil {
		return nil, &ConnectError{Locator: locator, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConnectError{Locator: locator, Err: err}
	}
	if info.IsDir() {
		return nil, &ConnectError{Locator: locator, Err: fmt.Errorf("%s is a directory", path)}
	}

	db, err := sql.Open("sqlite3", ReadOnlyDSN(path))
	if err != nil {
		return nil, &ConnectError{Locator: locator, Err: err}
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err == nil {
		err = conn.PingContext(ctx)
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, &ConnectError{Locator: locator, Err: err}
	}

	slog.Debug("Opened database", "path", path)
	return &Conn{Path: path, db: db, conn: conn}, nil
}

// ReadOnlyDSN builds the driver URI for a read-only connection to path.
func ReadOnlyDSN(path string) string {
	return "file:" + filepath.ToSlash(path) + "?mode=ro&_query_only=true"
}

// Conn is a pinned read-only connection returned by SQLiteOpener.
type Conn struct {
	Path string
	db   *sql.DB
	conn *sql.Conn
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

// Close releases the pinned connection and the pool behind it.
func (c *Conn) Close() error {
	return errors.Join(c.conn.Close(), c.db.Close())
}
