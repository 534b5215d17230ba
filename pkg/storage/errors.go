package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error wraps backend failures with the operation that hit them.
// Entity-level outcomes (not found, already exists) are reported with
// the domain packages' error types instead.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique constraint
// violations.
const pgUniqueViolation = "23505"

// isUniqueViolation classifies driver errors from all three SQL drivers.
// Postgres errors carry a typed code; both sqlite drivers are matched on
// their stable message text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
