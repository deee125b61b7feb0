package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// PoolStats is a snapshot of an engine's connection pool.
type PoolStats struct {
	Engine    string `json:"engine"`
	Type      string `json:"type"`
	MaxConns  int    `json:"max_conns"`
	OpenConns int    `json:"open_conns"`
	InUse     int    `json:"in_use"`
	Idle      int    `json:"idle"`
}

// StatsReporter is implemented by engines that expose pool statistics.
type StatsReporter interface {
	Stats() PoolStats
}

// SQLEngine implements orm.Engine over database/sql. It serves every
// adapter whose driver plugs into database/sql (mysql, mssql, sqlite).
type SQLEngine struct {
	name     string
	dbType   string
	dialect  orm.Dialect
	db       *sql.DB
	maxConns int
}

// NewSQLEngine wraps db and applies the pool options.
func NewSQLEngine(name, dbType string, dialect orm.Dialect, db *sql.DB, opts PoolOptions) *SQLEngine {
	opts = opts.WithDefaults()
	db.SetMaxOpenConns(int(opts.MaxConns))
	db.SetMaxIdleConns(int(opts.MaxConns))
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	return &SQLEngine{name: name, dbType: dbType, dialect: dialect, db: db, maxConns: int(opts.MaxConns)}
}

func (e *SQLEngine) Name() string                   { return e.name }
func (e *SQLEngine) Dialect() orm.Dialect           { return e.dialect }
func (e *SQLEngine) DB() *sql.DB                    { return e.db }
func (e *SQLEngine) Ping(ctx context.Context) error { return e.db.PingContext(ctx) }

// Close closes all connections in the pool.
func (e *SQLEngine) Close() { _ = e.db.Close() }

func (e *SQLEngine) Acquire(ctx context.Context) (orm.Conn, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

func (e *SQLEngine) Stats() PoolStats {
	s := e.db.Stats()
	return PoolStats{
		Engine:    e.name,
		Type:      e.dbType,
		MaxConns:  e.maxConns,
		OpenConns: s.OpenConnections,
		InUse:     s.InUse,
		Idle:      s.Idle,
	}
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Begin(ctx context.Context) (orm.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (c *sqlConn) Release() { _ = c.conn.Close() }

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (*orm.RowSet, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (orm.ExecResult, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return orm.ExecResult{}, err
	}
	var out orm.ExecResult
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
		out.HasLastInsertID = true
	}
	return out, nil
}

func (t *sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }

// ScanRows materializes database/sql rows as raw driver values.
func ScanRows(rows *sql.Rows) (*orm.RowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	rs := &orm.RowSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return rs, nil
}
