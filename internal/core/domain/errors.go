package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes use the SM-<AREA>-<NNNN> format so callers can match on them
// across the HTTP boundary.
//
// @req RQ-0104
// @design DS-0104
type DomainError struct {
	Code    string // Error code (e.g., "SM-CKPT-4090")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Checkpoint Errors (CKPT)
// ============================================================================

var (
	// ErrBackendUnavailable indicates the state backend cannot provide a
	// consistent read view (closed or shutting down). Raised synchronously
	// by the snapshot trigger call; no asynchronous work is scheduled.
	ErrBackendUnavailable = NewDomainError("SM-CKPT-5030", "state backend unavailable")

	// ErrSnapshotInProgress indicates another asynchronous snapshot is
	// still outstanding for this backend instance.
	ErrSnapshotInProgress = NewDomainError("SM-CKPT-4090", "snapshot already in progress")

	// ErrCheckpointCancelled indicates the snapshot was cancelled on
	// request. This is a distinct terminal outcome, not a durability failure.
	ErrCheckpointCancelled = NewDomainError("SM-CKPT-4991", "checkpoint cancelled")

	// ErrSerializationFailure indicates an I/O or encoding error during
	// the asynchronous materialization phase.
	ErrSerializationFailure = NewDomainError("SM-CKPT-5001", "snapshot serialization failed")

	// ErrCheckpointNotFound indicates no checkpoint data exists for restore.
	ErrCheckpointNotFound = NewDomainError("SM-CKPT-4040", "checkpoint not found")
)

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrEntryNotFound indicates the requested state entry was not found.
	ErrEntryNotFound = NewDomainError("SM-STOR-4040", "state entry not found")

	// ErrStoreClosed indicates the state store has been closed.
	ErrStoreClosed = NewDomainError("SM-STOR-5030", "state store closed")

	// ErrKeyGroupOutOfRange indicates a key hashed into a key group not
	// owned by this backend instance.
	ErrKeyGroupOutOfRange = NewDomainError("SM-STOR-4001", "key group out of owned range")

	// ErrStateNotRegistered indicates an operation referenced a state name
	// that has not been registered with the backend.
	ErrStateNotRegistered = NewDomainError("SM-STOR-4041", "state not registered")

	// ErrStateConflict indicates a state name was registered twice with
	// incompatible serializer descriptors.
	ErrStateConflict = NewDomainError("SM-STOR-4090", "state registration conflict")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SM-ARG-1002", "missing required argument")
)
