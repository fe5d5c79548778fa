// Package governance defines the rejection taxonomy shared by every request
// governance stage and the JSON writer that terminates a rejected request.
//
// Rejections never reach route handlers: a stage that rejects writes the
// response itself through a Writer and stops the chain.
package governance

import (
	"errors"
	"fmt"
	"net/http"
	"opshop/internal/models"
	"time"
)

// Kind classifies a governance rejection.
type Kind string

const (
	KindRateLimitExceeded          Kind = "RateLimitExceeded"
	KindCsrfValidationFailed       Kind = "CsrfValidationFailed"
	KindSessionUnavailable         Kind = "SessionUnavailable"
	KindSuspiciousActivityDetected Kind = "SuspiciousActivityDetected"
)

// LegacyCSRFCode is the error code older clients still match on. It is
// accepted as an alias and always reported as CSRF_VALIDATION_FAILED.
const LegacyCSRFCode = "EBADCSRFTOKEN"

// Error is a governance rejection with its HTTP context.
type Error struct {
	Kind       Kind
	Code       string
	Title      string
	Message    string
	StatusCode int
	RetryAfter time.Duration
	// Class is the endpoint class of the limiter that rejected, if any.
	Class string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can compare against the constructors' output.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrRateLimitExceeded  = &Error{Kind: KindRateLimitExceeded}
	ErrCsrfValidation     = &Error{Kind: KindCsrfValidationFailed}
	ErrSessionUnavailable = &Error{Kind: KindSessionUnavailable}
	ErrSuspiciousActivity = &Error{Kind: KindSuspiciousActivityDetected}
)

// Error constructors for each rejection kind

func NewRateLimitError(class string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimitExceeded,
		Code:       models.ErrorCodeRateLimitExceeded,
		Title:      "Too many requests",
		Message:    "Too many requests from this client, please try again later.",
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
		Class:      class,
	}
}

func NewCSRFError() *Error {
	return &Error{
		Kind:       KindCsrfValidationFailed,
		Code:       models.ErrorCodeCSRFValidation,
		Title:      "Invalid CSRF token",
		Message:    "CSRF token validation failed. Please refresh the page and try again.",
		StatusCode: http.StatusForbidden,
	}
}

func NewSessionUnavailableError(err error) *Error {
	return &Error{
		Kind:       KindSessionUnavailable,
		Code:       models.ErrorCodeSessionUnavailable,
		Title:      "Session unavailable",
		Message:    "Session not available. Please enable cookies and try again.",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewSuspiciousActivityError(reason string) *Error {
	return &Error{
		Kind:       KindSuspiciousActivityDetected,
		Code:       models.ErrorCodeSuspiciousActivity,
		Title:      "Forbidden",
		Message:    "Request blocked due to suspicious activity.",
		StatusCode: http.StatusForbidden,
		Err:        errors.New(reason),
	}
}

// FromCode maps an error code, including legacy aliases, to a rejection.
// Unknown codes return nil.
func FromCode(code string) *Error {
	switch code {
	case models.ErrorCodeCSRFValidation, LegacyCSRFCode:
		return NewCSRFError()
	case models.ErrorCodeSessionUnavailable:
		return NewSessionUnavailableError(nil)
	case models.ErrorCodeSuspiciousActivity:
		return NewSuspiciousActivityError("")
	case models.ErrorCodeRateLimitExceeded:
		return NewRateLimitError("", 0)
	}
	return nil
}
