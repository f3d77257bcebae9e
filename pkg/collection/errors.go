package collection

import "errors"

// StoreError represents a domain error from collection operations.
//
// These are business errors (document not found, corrupt JSON, lock timeout)
// as opposed to programming errors. Callers match on Code rather than on
// concrete error types, so the taxonomy stays a flat tagged union instead of
// a class hierarchy.
//
// The facade translates StoreError codes into user-facing result structures;
// no raw error crosses that boundary unwrapped.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the filesystem path related to the error (if applicable)
	Path string

	// Hints lists remediation steps for user-visible failures
	Hints []string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a collection error.
type ErrorCode int

const (
	// ErrValidation indicates invalid input (empty band name, bad migration type).
	ErrValidation ErrorCode = iota

	// ErrNotFound indicates the requested document or index doesn't exist.
	ErrNotFound

	// ErrCorrupt indicates a document exists but cannot be parsed as JSON.
	ErrCorrupt

	// ErrLockTimeout indicates the sidecar lock could not be acquired in time.
	ErrLockTimeout

	// ErrIO indicates an I/O error reading or writing metadata.
	ErrIO

	// ErrScanning indicates a failure while walking the music root.
	ErrScanning

	// ErrMigrationPermission indicates a permission failure during migration.
	ErrMigrationPermission

	// ErrMigrationDiskSpace indicates the disk filled up during migration.
	ErrMigrationDiskSpace

	// ErrMigrationFileLock indicates a file was locked by another process.
	ErrMigrationFileLock

	// ErrMigrationPartial indicates some albums migrated and some failed.
	ErrMigrationPartial

	// ErrRollback indicates restoring the pre-migration backup failed.
	// This is terminal: it is never retried automatically and requires
	// manual intervention.
	ErrRollback

	// ErrConfig indicates invalid configuration.
	ErrConfig
)

// NewStoreError creates a StoreError with the given code and message.
func NewStoreError(code ErrorCode, message, path string) *StoreError {
	return &StoreError{Code: code, Message: message, Path: path}
}

// WrapError creates a StoreError wrapping an underlying cause.
func WrapError(code ErrorCode, message, path string, err error) *StoreError {
	return &StoreError{Code: code, Message: message, Path: path, Err: err}
}

// CodeOf extracts the ErrorCode from an error chain.
// The second return is false when the chain contains no StoreError.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsCode reports whether err carries the given ErrorCode.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
