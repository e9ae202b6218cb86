package kv

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict reports that a concurrently committed transaction wrote
	// one of this transaction's read-conflict keys. RunTransaction retries
	// it transparently.
	ErrConflict = errors.New("kv: transaction conflict")
	// ErrTxDone reports use of a transaction after commit or abort.
	ErrTxDone = errors.New("kv: transaction already finished")
	// ErrUnresolved reports reading a versionstamp future before commit.
	ErrUnresolved = errors.New("kv: versionstamp not resolved yet")
)

// RetryLimitError reports that the automatic retry budget was exhausted.
type RetryLimitError struct {
	Attempts int
	Last     error
}

func (e *RetryLimitError) Error() string {
	return fmt.Sprintf("kv: transaction retry limit reached after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryLimitError) Unwrap() error { return e.Last }
