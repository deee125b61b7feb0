package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/orm"
)

// Engine provides PostgreSQL connectivity through a pgx pool.
type Engine struct {
	name string
	pool *pgxpool.Pool
}

// NewEngine parses a postgres:// URL and creates the pool.
func NewEngine(ctx context.Context, name, connStr string, opts datasource.PoolOptions) (*Engine, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	opts = opts.WithDefaults()
	poolConfig.MaxConns = opts.MaxConns
	poolConfig.MinConns = opts.MinConns
	poolConfig.MaxConnIdleTime = opts.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Engine{name: name, pool: pool}, nil
}

func (e *Engine) Name() string                   { return e.name }
func (e *Engine) Dialect() orm.Dialect           { return orm.DialectPostgres }
func (e *Engine) Ping(ctx context.Context) error { return e.pool.Ping(ctx) }
func (e *Engine) Close()                         { e.pool.Close() }

func (e *Engine) Acquire(ctx context.Context) (orm.Conn, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &poolConn{conn: conn}, nil
}

func (e *Engine) Stats() datasource.PoolStats {
	s := e.pool.Stat()
	return datasource.PoolStats{
		Engine:    e.name,
		Type:      "postgres",
		MaxConns:  int(s.MaxConns()),
		OpenConns: int(s.TotalConns()),
		InUse:     int(s.AcquiredConns()),
		Idle:      int(s.IdleConns()),
	}
}

type poolConn struct {
	conn *pgxpool.Conn
}

func (c *poolConn) Begin(ctx context.Context) (orm.Tx, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

func (c *poolConn) Release() { c.conn.Release() }

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Query(ctx context.Context, sql string, args ...any) (*orm.RowSet, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	rs := &orm.RowSet{Columns: make([]string, len(fields))}
	for i, f := range fields {
		rs.Columns[i] = f.Name
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (orm.ExecResult, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return orm.ExecResult{}, err
	}
	return orm.ExecResult{RowsAffected: tag.RowsAffected()}, nil
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

var _ datasource.StatsReporter = (*Engine)(nil)
