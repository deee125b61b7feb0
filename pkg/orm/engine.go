package orm

import "context"

// Engine is a pool of connections to one physical database.
type Engine interface {
	// Name identifies the engine in logs and session bookkeeping.
	Name() string
	Dialect() Dialect
	// Acquire takes a connection from the pool. The caller must Release it.
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
}

// Conn is one pooled connection.
type Conn interface {
	Begin(ctx context.Context) (Tx, error)
	// Release returns the connection to its pool.
	Release()
}

// Tx is an open transaction on a Conn.
type Tx interface {
	// Query runs a statement and materializes all returned rows.
	Query(ctx context.Context, sql string, args ...any) (*RowSet, error)
	Exec(ctx context.Context, sql string, args ...any) (ExecResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RowSet holds the raw driver values of a query result.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// ExecResult is the outcome of a statement that returns no rows.
type ExecResult struct {
	RowsAffected    int64
	LastInsertID    int64
	HasLastInsertID bool
}

// Result is the normalized outcome of Session.Execute.
type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
}
