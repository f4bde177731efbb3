package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrTxConflict is returned by a single transaction attempt when another
	// writer changed the key. Transact retries it and never returns it.
	ErrTxConflict = errors.New("db: transaction conflict")
	// ErrTxExhausted is returned by Transact when every attempt conflicted.
	ErrTxExhausted = errors.New("db: transaction retries exhausted")
)

// Op constants name the failing operation for error context.
const (
	OpGet      = "GET"
	OpSet      = "SET"
	OpWatch    = "WATCH"
	OpExec     = "EXEC"
	OpTransact = "TX"
	OpPing     = "PING"
	OpSchema   = "SCHEMA"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
