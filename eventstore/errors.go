package eventstore

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

var (
	// ErrReferentialViolation is returned when a batch references a block or
	// transaction that is neither part of the batch nor already required by
	// it. These are programmer errors and fail the whole operation.
	ErrReferentialViolation = errors.New("eventstore: log or transaction references an artifact missing from the batch")

	// ErrRetryExhausted wraps the last serialization conflict after the
	// bounded retry budget is spent.
	ErrRetryExhausted = errors.New("eventstore: write transaction retries exhausted")
)

// isSerializationConflict classifies engine errors that a retry can resolve:
// SQLite reports a writer collision as BUSY (another connection holds the
// write lock) or LOCKED (a conflicting statement within the same
// connection).
func isSerializationConflict(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
