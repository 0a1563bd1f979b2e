// Package errors defines the error taxonomy shared by the reconciliation
// pipeline. Callers match categories with errors.Is against the sentinels and
// extract details with errors.As against the typed errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel categories.
var (
	// ErrMissingSessionData indicates a dataset required by a run is absent for the session.
	ErrMissingSessionData = errors.New("missing session data")

	// ErrMalformedRecord indicates a single row could not be used. It is never fatal for a batch.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnreadableInput indicates an input could not be parsed at all.
	ErrUnreadableInput = errors.New("unreadable input")

	// ErrInvalidStrategy indicates an unknown distribution strategy.
	ErrInvalidStrategy = errors.New("invalid distribution strategy")

	// ErrLedgerUnavailable indicates no run ledger is configured.
	ErrLedgerUnavailable = errors.New("run ledger not configured")
)

// MissingDataError names the session and dataset that could not be located.
type MissingDataError struct {
	SessionID string
	Dataset   string
}

// Error implements the error interface.
func (e *MissingDataError) Error() string {
	return fmt.Sprintf("dataset %q not found for session %s", e.Dataset, e.SessionID)
}

// Is implements errors.Is support.
func (e *MissingDataError) Is(target error) bool {
	return target == ErrMissingSessionData
}

// NewMissingDataError creates a new MissingDataError.
func NewMissingDataError(sessionID, dataset string) *MissingDataError {
	return &MissingDataError{SessionID: sessionID, Dataset: dataset}
}

// RowError describes why one input row was rejected.
type RowError struct {
	Line   int
	Reason string
}

// Error implements the error interface.
func (e *RowError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return e.Reason
}

// Is implements errors.Is support.
func (e *RowError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// NewRowError creates a new RowError.
func NewRowError(line int, format string, args ...any) *RowError {
	return &RowError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// UnreadableInputError wraps the cause of a structural parse failure.
type UnreadableInputError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *UnreadableInputError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unreadable %s", e.Source)
	}
	return fmt.Sprintf("unreadable %s: %v", e.Source, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *UnreadableInputError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *UnreadableInputError) Is(target error) bool {
	return target == ErrUnreadableInput
}

// NewUnreadableInputError creates a new UnreadableInputError.
func NewUnreadableInputError(source string, err error) *UnreadableInputError {
	return &UnreadableInputError{Source: source, Err: err}
}
