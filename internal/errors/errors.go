package errors

import (
	"errors"
)

// Sentinel errors. Every failure that reaches a conversation ends up as a
// chat turn; the category only decides the wording and whether logs escalate.
var (
	// ErrInvalidInput - request could not be built or was rejected as malformed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - session, content item or job is unknown
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied - backend refused our credentials
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict - duplicate start or repeated save
	ErrConflict = errors.New("conflict")

	// ErrTransient - network error, timeout, rate limit or 5xx
	ErrTransient = errors.New("transient error")

	// ErrBackend - backend answered but reported failure or returned nothing usable
	ErrBackend = errors.New("backend failure")

	// ErrJobFailed - async job reached an explicit failed status
	ErrJobFailed = errors.New("job failed")

	// ErrJobTimedOut - client stopped watching an async job; the job may still finish
	ErrJobTimedOut = errors.New("job still processing")

	// ErrClosed - session or component already torn down
	ErrClosed = errors.New("closed")

	// ErrInternal - anything else
	ErrInternal = errors.New("internal error")
)
