package orm

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-streams/pkg/apperrors"
)

var (
	// ErrItemNotFound is returned when a row selected by id does not exist
	// or is hidden by the query's filters.
	ErrItemNotFound = fmt.Errorf("item %w", apperrors.ErrNotFound)

	// ErrOrm reports a broken ORM invariant (duplicate ids, unknown keys, missing binds).
	ErrOrm = errors.New("orm error")

	// ErrPublication is returned for operations forbidden on the front side
	// of a publication mapper.
	ErrPublication = errors.New("operation not allowed on front mapper")

	// ErrStateViolation is returned when a workflow transition does not
	// start from the expected state.
	ErrStateViolation = errors.New("state violation")

	// ErrSessionFailed is returned by a session used after a driver error
	// until it is rolled back.
	ErrSessionFailed = errors.New("session is in failed state")
)

// ItemNotFoundError carries the id of the missing item.
type ItemNotFoundError struct {
	ID any
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %v not found", e.ID)
}

func (e *ItemNotFoundError) Unwrap() error { return ErrItemNotFound }

// DBAPIError wraps a driver error together with the failing statement.
type DBAPIError struct {
	SQL  string
	Args []any
	Err  error
}

func (e *DBAPIError) Error() string {
	return fmt.Sprintf("database error: %v [sql: %s]", e.Err, e.SQL)
}

func (e *DBAPIError) Unwrap() error { return e.Err }

func ormErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrOrm, fmt.Sprintf(format, args...))
}
