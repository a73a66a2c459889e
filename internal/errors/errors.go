// Package errors provides error code definitions shared across the engine.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to callers and the UI.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Store errors
	ErrStoreOpen      ErrorCode = "STORE_OPEN_FAILED"
	ErrStoreWrite     ErrorCode = "STORE_WRITE_FAILED"
	ErrStoreCorrupted ErrorCode = "STORE_CORRUPTED"
	ErrMigration      ErrorCode = "MIGRATION_FAILED"

	// Queue errors
	ErrEntryNotFound  ErrorCode = "QUEUE_ENTRY_NOT_FOUND"
	ErrInvalidStatus  ErrorCode = "QUEUE_INVALID_STATUS"
	ErrEntryImmutable ErrorCode = "QUEUE_ENTRY_IMMUTABLE"

	// Sync errors
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncOffline    ErrorCode = "SYNC_OFFLINE"
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrSyncConflict   ErrorCode = "SYNC_CONFLICT"
	ErrSyncTimeout    ErrorCode = "SYNC_TIMEOUT"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
