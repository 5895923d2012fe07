package domain

import "fmt"

// Error represents a coded error with an optional cause
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Request errors
	ErrMissingFields = &Error{Code: "MISSING_FIELDS", Message: "missing fields"}
	ErrNoDevice      = &Error{Code: "NO_DEVICE", Message: "no device"}

	// Auth errors
	ErrUnauthorized         = &Error{Code: "UNAUTHORIZED", Message: "unauthorized"}
	ErrInvalidIdentityToken = &Error{Code: "INVALID_IDENTITY_TOKEN", Message: "invalid provider identity token"}
	ErrInvalidRefreshToken  = &Error{Code: "INVALID_REFRESH_TOKEN", Message: "invalid refresh token"}

	// Access-denial errors
	ErrSubscriptionInactive = &Error{Code: "SUBSCRIPTION_INACTIVE", Message: "subscription inactive"}
	ErrDeviceBlocked        = &Error{Code: "DEVICE_BLOCKED", Message: "device blocked"}
	ErrDeviceLimitExceeded  = &Error{Code: "DEVICE_LIMIT_EXCEEDED", Message: "device limit exceeded"}

	// Upstream errors
	ErrAuthorityUnavailable = &Error{Code: "AUTHORITY_UNAVAILABLE", Message: "access authority unavailable"}
	ErrSignalFetchFailed    = &Error{Code: "SIGNAL_FETCH_FAILED", Message: "signal fetch failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
