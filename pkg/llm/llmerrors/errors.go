// Package llmerrors provides structured error classification for
// completion-service interactions, driving the retry middleware.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents categories of completion-service errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Retryable reports whether errors of this type are worth retrying.
func (et ErrorType) Retryable() bool {
	switch et {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// Error is a classified completion-service error.
type Error struct {
	Type    ErrorType
	Status  int // HTTP status when known, 0 otherwise
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified error with a message.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// NewErrorWithCause creates a classified error wrapping an underlying cause.
func NewErrorWithCause(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// NewErrorWithStatus creates a classified error carrying an HTTP status.
func NewErrorWithStatus(t ErrorType, status int, message string) *Error {
	return &Error{Type: t, Status: status, Message: message}
}

// IsRetryable reports whether err is a classified retryable error.
// Unclassified errors are not retried.
func IsRetryable(err error) bool {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Type.Retryable()
	}
	return false
}

// Classify maps an arbitrary SDK error to a classified error using context
// sentinels, embedded HTTP status codes, and common message patterns.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()
	switch status := extractStatusCode(errStr); status {
	case 401, 403:
		return NewErrorWithStatus(ErrorTypeAuth, status, "authentication failed - check API key")
	case 429:
		return NewErrorWithStatus(ErrorTypeRateLimit, status, "rate limit exceeded")
	case 400:
		return NewErrorWithStatus(ErrorTypeBadPrompt, status, "bad request - check prompt format and parameters")
	case 500, 502, 503, 504:
		return NewErrorWithStatus(ErrorTypeTransient, status, "server error")
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "network"),
		strings.Contains(lower, "eof"),
		strings.Contains(lower, "reset"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate"), strings.Contains(lower, "quota"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "malformed"), strings.Contains(lower, "too large"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, "prompt or request error")
	}

	return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
}

// extractStatusCode attempts to extract an HTTP status code from an error
// string; provider SDKs typically embed it in the message.
func extractStatusCode(errStr string) int {
	lower := strings.ToLower(errStr)
	for _, pattern := range []string{"status code: ", "status: ", "http "} {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := lower[idx+len(pattern):]
		for _, code := range []string{"400", "401", "403", "429", "500", "502", "503", "504"} {
			if strings.HasPrefix(rest, code) {
				switch code {
				case "400":
					return 400
				case "401":
					return 401
				case "403":
					return 403
				case "429":
					return 429
				case "500":
					return 500
				case "502":
					return 502
				case "503":
					return 503
				case "504":
					return 504
				}
			}
		}
	}
	return 0
}
