package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// DSN converts sqlite:///abs/path.db, sqlite://rel/path.db or a plain
// file: URL into a go-sqlite3 DSN with foreign keys enabled.
func DSN(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid SQLite URL")
	}
	var path string
	switch {
	case u.Scheme == "file":
		path = strings.TrimPrefix(rawURL, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
	case u.Opaque != "":
		path = u.Opaque
	default:
		path = u.Host + u.Path
	}
	if path == "" {
		return "", fmt.Errorf("database path is required")
	}

	q := u.Query()
	q.Set("_foreign_keys", "1")
	if q.Get("_busy_timeout") == "" {
		q.Set("_busy_timeout", "5000")
	}
	return "file:" + path + "?" + q.Encode(), nil
}

// NewEngine opens a SQLite database. SQLite allows one writer at a time,
// so the pool is limited to a single connection.
func NewEngine(ctx context.Context, name, rawURL string, opts datasource.PoolOptions) (*datasource.SQLEngine, error) {
	dsn, err := DSN(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	opts.MaxConns = 1
	opts.MinConns = 1
	return datasource.NewSQLEngine(name, "sqlite", orm.DialectSQLite, db, opts), nil
}
