package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStateCorruption      = errors.New("state corruption")
	ErrUnknownSchemaVersion = errors.New("unknown state schema version")
	ErrLockContention       = errors.New("another reconciliation run holds the state lock")
	ErrItemNotFound         = errors.New("content item not found")
)

// Permanent marks an external failure that must not be retried
// (authorization rejected, invalid payload, malformed response).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err is wrapped with Permanent.
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e permanentError) Unwrap() error { return e.err }

// RetryAfter marks a transient failure carrying the server's retry hint.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }

// SchemaError describes a state document that cannot be migrated safely.
type SchemaError struct {
	Version int
	Step    string
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Version < 0 {
		return fmt.Sprintf("state document: %v", e.Err)
	}
	if e.Step != "" {
		return fmt.Sprintf("state schema v%d (%s): %v", e.Version, e.Step, e.Err)
	}
	return fmt.Sprintf("state schema v%d: %v", e.Version, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
