package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents internal error codes for sync and gateway operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeNotFound        ErrorCode = 1001
	ErrCodeUnauthorized    ErrorCode = 1002
	ErrCodeInvalidStrategy ErrorCode = 1003
	ErrCodeInvalidTenantID ErrorCode = 1004

	// Server / upstream errors (5xx equivalent)
	ErrCodeInternal            ErrorCode = 2000
	ErrCodeUpstreamUnavailable ErrorCode = 2001
	ErrCodeRateLimited         ErrorCode = 2002
	ErrCodeStoreFailed         ErrorCode = 2003
	ErrCodeDataInconsistency   ErrorCode = 2004
)

// Sentinel errors for upstream failure classes. Gateway callers branch on
// these with errors.Is.
var (
	// ErrUnauthorized means the refresh token is expired or revoked. Fatal
	// for the account's sync pass; requires out-of-band re-authentication.
	ErrUnauthorized = errors.New("marketplace authorization failed")

	// ErrNotFound means the upstream resource does not exist.
	ErrNotFound = errors.New("upstream resource not found")

	// ErrRateLimited means the upstream rejected the call with 429.
	ErrRateLimited = errors.New("rate limited by upstream")

	// ErrUpstreamUnavailable covers network failures and 5xx responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// IsTransient reports whether an error should be retried on the next
// scheduled sync pass rather than treated as fatal.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamUnavailable)
}

// IsFatal reports whether an error must abort the current sync task.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// SyncError represents a structured error with code and context
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// NewSyncError creates a new SyncError
func NewSyncError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeInvalidArgument, message, cause)
}

func InvalidStrategy(strategy string) *SyncError {
	return NewSyncError(ErrCodeInvalidStrategy, fmt.Sprintf("unknown sync strategy '%s'", strategy), nil)
}

func NotFound(resource, id string) *SyncError {
	return NewSyncError(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resource, id), ErrNotFound)
}

func Unauthorized(accountID string, cause error) *SyncError {
	return NewSyncError(ErrCodeUnauthorized, fmt.Sprintf("authorization failed for account %s", accountID), cause)
}

func StoreFailed(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeStoreFailed, message, cause)
}

func DataInconsistency(listingID, reason string) *SyncError {
	return NewSyncError(ErrCodeDataInconsistency, fmt.Sprintf("listing %s: %s", listingID, reason), nil)
}

func InternalError(message string, cause error) *SyncError {
	return NewSyncError(ErrCodeInternal, message, cause)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ErrCodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimited
	case errors.Is(err, ErrUpstreamUnavailable):
		return ErrCodeUpstreamUnavailable
	}
	return ErrCodeInternal
}
