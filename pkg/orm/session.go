package orm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// cleanupTimeout bounds rollback and release on scope exit.
const cleanupTimeout = 5 * time.Second

// Session coordinates one request's work across several engines.
// It holds at most one connection and one open transaction per engine,
// both acquired lazily on first use. A Session is not safe for concurrent use.
type Session struct {
	binds  map[string]Engine
	logger *zap.Logger

	conns map[string]Conn
	txs   map[string]Tx
	order []string // engine names in acquisition order

	failed error
	closed bool
}

// NewSession creates a session over a db_id -> engine routing table.
func NewSession(binds map[string]Engine, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		binds:  binds,
		logger: logger,
		conns:  make(map[string]Conn),
		txs:    make(map[string]Tx),
	}
}

// Engine returns the engine bound to a database identifier.
func (s *Session) Engine(dbID string) (Engine, error) {
	e, ok := s.binds[dbID]
	if !ok {
		return nil, ormErrorf("no engine bound for database %q", dbID)
	}
	return e, nil
}

// Execute routes the statement to the engine bound to its table's database
// and runs it inside that engine's transaction.
func (s *Session) Execute(ctx context.Context, stmt Statement) (*Result, error) {
	if s.closed {
		return nil, ormErrorf("session is closed")
	}
	if s.failed != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionFailed, s.failed)
	}
	engine, err := s.Engine(stmt.Table().DBID)
	if err != nil {
		return nil, err
	}
	tx, err := s.transaction(ctx, engine)
	if err != nil {
		return nil, err
	}

	sql, args := stmt.Build(engine.Dialect())
	s.logger.Debug("Executing statement",
		zap.String("engine", engine.Name()),
		zap.String("sql", sql))

	res, err := s.run(ctx, engine.Dialect(), tx, stmt, sql, args)
	if err != nil {
		dbErr := &DBAPIError{SQL: sql, Args: args, Err: err}
		s.failed = dbErr
		return nil, dbErr
	}
	return res, nil
}

func (s *Session) run(ctx context.Context, d Dialect, tx Tx, stmt Statement, sql string, args []any) (*Result, error) {
	switch st := stmt.(type) {
	case *SelectStmt:
		rs, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		rows, err := normalizeRows(st.resultColumns(), rs.Rows)
		if err != nil {
			return nil, err
		}
		return &Result{Columns: rs.Columns, Rows: rows}, nil
	case *InsertStmt:
		if st.ReturnID && d.insertReturnsRows() {
			rs, err := tx.Query(ctx, sql, args...)
			if err != nil {
				return nil, err
			}
			if len(rs.Rows) != 1 || len(rs.Rows[0]) == 0 {
				return nil, errors.New("insert returned no generated id")
			}
			id, err := toInt64(rs.Rows[0][0])
			if err != nil {
				return nil, err
			}
			return &Result{RowsAffected: 1, LastInsertID: id}, nil
		}
		er, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		if st.ReturnID && !er.HasLastInsertID {
			return nil, errors.New("driver did not report a generated id")
		}
		return &Result{RowsAffected: er.RowsAffected, LastInsertID: er.LastInsertID}, nil
	default:
		er, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		return &Result{RowsAffected: er.RowsAffected}, nil
	}
}

func normalizeRows(cols []Column, raw [][]any) ([][]any, error) {
	rows := make([][]any, len(raw))
	for i, r := range raw {
		if len(r) != len(cols) {
			return nil, fmt.Errorf("expected %d columns, got %d", len(cols), len(r))
		}
		row := make([]any, len(r))
		for j, v := range r {
			nv, err := cols[j].normalize(v)
			if err != nil {
				return nil, err
			}
			row[j] = nv
		}
		rows[i] = row
	}
	return rows, nil
}

// transaction returns the open transaction for engine, acquiring a
// connection and beginning a transaction on first use.
func (s *Session) transaction(ctx context.Context, engine Engine) (Tx, error) {
	name := engine.Name()
	if tx, ok := s.txs[name]; ok {
		return tx, nil
	}
	conn, ok := s.conns[name]
	if !ok {
		c, err := engine.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire connection from %s: %w", name, err)
		}
		conn = c
		s.conns[name] = conn
		s.order = append(s.order, name)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction on %s: %w", name, err)
	}
	s.txs[name] = tx
	return tx, nil
}

// Commit commits every open transaction. The session stays usable; the
// next statement on an engine begins a new transaction on the cached connection.
func (s *Session) Commit(ctx context.Context) error {
	if s.failed != nil {
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.failed)
	}
	for _, name := range s.order {
		tx, ok := s.txs[name]
		if !ok {
			continue
		}
		delete(s.txs, name)
		if err := tx.Commit(ctx); err != nil {
			s.failed = err
			return fmt.Errorf("failed to commit on %s: %w", name, err)
		}
	}
	return nil
}

// Rollback rolls back every open transaction and clears the failed state.
func (s *Session) Rollback(ctx context.Context) error {
	var errs []error
	for _, name := range s.order {
		tx, ok := s.txs[name]
		if !ok {
			continue
		}
		delete(s.txs, name)
		if err := tx.Rollback(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to roll back on %s: %w", name, err))
		}
	}
	s.failed = nil
	return errors.Join(errs...)
}

// Close rolls back open transactions and releases every connection.
// Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	err := s.Rollback(ctx)
	for _, name := range s.order {
		s.conns[name].Release()
		delete(s.conns, name)
	}
	s.order = nil
	s.closed = true
	return err
}

// WithSession runs fn inside a session scope. The session commits when fn
// returns nil and is closed without committing when fn returns an error or
// panics. Connections are released on every path, including cancellation.
func WithSession(ctx context.Context, binds map[string]Engine, logger *zap.Logger, fn func(*Session) error) (err error) {
	sess := NewSession(binds, logger)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if closeErr := sess.Close(cleanupCtx); closeErr != nil {
			sess.logger.Error("Failed to close session", zap.Error(closeErr))
		}
	}()

	if err = fn(sess); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	return sess.Commit(ctx)
}
