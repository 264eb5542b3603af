package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorMapper maps external errors to the copydesk error taxonomy
type ErrorMapper interface {
	MapError(err error) error
	Category(err error) string
}

// DefaultErrorMapper implements the taxonomy mapping
type DefaultErrorMapper struct{}

func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError maps free-form errors onto a category based on their text.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w", ErrTransient)
	}
	if categorized(err) {
		return err
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"):
		return fmt.Errorf("resource not found: %w", ErrNotFound)
	case strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "forbidden"), strings.Contains(errStr, "permission denied"):
		return fmt.Errorf("access denied: %w", ErrPermissionDenied)
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "too many requests"):
		return fmt.Errorf("rate limited: %w", ErrTransient)
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return fmt.Errorf("request timeout: %w", ErrTransient)
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"), strings.Contains(errStr, "unreachable"), strings.Contains(errStr, "eof"):
		return fmt.Errorf("network error: %w", ErrTransient)
	case strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"):
		return fmt.Errorf("invalid request: %w", ErrInvalidInput)
	case strings.Contains(errStr, "already exists"), strings.Contains(errStr, "duplicate"):
		return fmt.Errorf("conflict: %w", ErrConflict)
	default:
		return fmt.Errorf("internal error: %w", ErrInternal)
	}
}

// Category returns the taxonomy name for an error
func (m *DefaultErrorMapper) Category(err error) string {
	return Category(err)
}

func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrPermissionDenied):
		return "ErrPermissionDenied"
	case errors.Is(err, ErrConflict):
		return "ErrConflict"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrBackend):
		return "ErrBackend"
	case errors.Is(err, ErrJobFailed):
		return "ErrJobFailed"
	case errors.Is(err, ErrJobTimedOut):
		return "ErrJobTimedOut"
	case errors.Is(err, ErrClosed):
		return "ErrClosed"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

func categorized(err error) bool {
	return Category(err) != "Unknown"
}

// FromHTTPStatus categorizes a non-2xx backend response.
func FromHTTPStatus(status int, body string) error {
	msg := strings.TrimSpace(body)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	detail := fmt.Sprintf("status %d: %s", status, msg)

	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", detail, ErrInvalidInput)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", detail, ErrPermissionDenied)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", detail, ErrNotFound)
	case status == http.StatusConflict:
		return fmt.Errorf("%s: %w", detail, ErrConflict)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return fmt.Errorf("%s: %w", detail, ErrTransient)
	default:
		return fmt.Errorf("%s: %w", detail, ErrBackend)
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory attaches a category while keeping the cause in the text
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %v: %w", message, err, category)
}

func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

func Backend(message string) error {
	return fmt.Errorf("%s: %w", message, ErrBackend)
}

func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

func Closed(message string) error {
	return fmt.Errorf("%s: %w", message, ErrClosed)
}
