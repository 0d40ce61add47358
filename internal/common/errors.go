// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Extraction errors.
	ErrNoMatch       = errors.New("pattern matched nothing")
	ErrInvalidNumber = errors.New("captured text is not a number")

	// Formula errors.
	ErrInvalidCharacters = errors.New("formula contains disallowed characters")
	ErrEvaluationFailed  = errors.New("formula evaluation failed")

	// Storage errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Auth errors.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// LedgerError is a voucher submission rejected by the external ledger.
// AttachmentRejected is set when the ledger refused the attachment field
// specifically, which the operator may recover from by retrying without it.
type LedgerError struct {
	Err                error
	Message            string
	StatusCode         int
	AttachmentRejected bool
}

func (e *LedgerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ledger rejected request (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("ledger request failed: %v", e.Err)
	}
	return "ledger request failed: " + e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// TransportError is a mail fetch failure. It aborts processing of the
// current rule only; other rules continue.
type TransportError struct {
	Err error
	Op  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		// Server-side failures are worth retrying; validation errors are not.
		return ledgerErr.StatusCode >= 500
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
