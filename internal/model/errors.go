package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is the root of every intent decoding failure.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownOperation is returned when an intent carries an operation other than subscribe or unsubscribe.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrNotFound is returned when a targeted record does not exist.
	ErrNotFound = errors.New("subscriber not found")
	// ErrConflict is returned when a record with the same id already exists.
	ErrConflict = errors.New("subscriber already exists")
	// ErrStoreUnavailable is returned for transient record store failures.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrAmbiguousEmail is returned when the email index resolves to more than one record.
	ErrAmbiguousEmail = errors.New("email resolves to more than one subscriber")
	// ErrAbandoned marks messages left unattempted because processing was cancelled.
	ErrAbandoned = errors.New("message abandoned before processing")
	// ErrPanicked wraps a panic recovered while processing one message.
	ErrPanicked = errors.New("panic while processing message")
	// ErrInvalidCursor is returned when a pagination token cannot be decoded.
	ErrInvalidCursor = errors.New("invalid pagination token")
	// ErrEmailTaken is returned when an admin update would give two subscribers the same email.
	ErrEmailTaken = errors.New("email already belongs to another subscriber")
	// ErrInvalidEmail is returned when an email address does not parse.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidName is returned when a subscriber name is empty or too long.
	ErrInvalidName = errors.New("name must be between 1 and 200 characters")
	// ErrInvalidLimit is returned for admin page sizes outside 1..100.
	ErrInvalidLimit = errors.New("limit must be between 1 and 100")
	// ErrInvalidStatus is returned for status values other than active or inactive.
	ErrInvalidStatus = errors.New("status must be active or inactive")
)

// MalformedMessageError describes why an intent payload was rejected.
type MalformedMessageError struct {
	Field  string
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	msg := "malformed message"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is reports ErrMalformedMessage for every MalformedMessageError.
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

func malformed(field, reason string, err error) error {
	return &MalformedMessageError{Field: field, Reason: reason, Err: err}
}

// IsRetryable reports whether leaving the message unacknowledged can lead to a different outcome.
// Malformed payloads and ambiguous email lookups fail the same way on every delivery.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrMalformedMessage) && !errors.Is(err, ErrAmbiguousEmail)
}

// FailureReason maps an error to a short, bounded label for logs and metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedMessage):
		return "malformed"
	case errors.Is(err, ErrAmbiguousEmail):
		return "ambiguous_email"
	case errors.Is(err, ErrAbandoned):
		return "abandoned"
	case errors.Is(err, ErrPanicked):
		return "panic"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
