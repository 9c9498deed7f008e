package services

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials is returned for any failed login, whether or
	// not the email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailExists is returned when registering an email already in use.
	ErrEmailExists = errors.New("email already registered")
	// ErrForbidden is returned when the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNoConsent is returned when revoking or reading a consent that was never granted.
	ErrNoConsent = errors.New("no consent found")
	// ErrProcessing hides hashing, signing and cipher failures from callers.
	ErrProcessing = errors.New("failed to process request")
	// ErrStorageDisabled is returned when an export is requested without
	// an object storage backend.
	ErrStorageDisabled = errors.New("object storage is not configured")
	// ErrNoExport is returned when a principal has no exported report.
	ErrNoExport = errors.New("no exported report")
)

// ValidationError carries every reason a request was rejected.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

func newValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

// AsValidationError unwraps a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ConsentDeniedError is returned by operations that require consent when
// the ledger denies it. Reason is one of the Reason* constants.
type ConsentDeniedError struct {
	Reason string
}

func (e *ConsentDeniedError) Error() string {
	return "consent denied: " + e.Reason
}
