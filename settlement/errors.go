package settlement

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTerminalState is returned by Advance at the last stage.
	ErrTerminalState = errors.New("process already at terminal stage")

	// ErrInitialState is returned by Revert at the first stage.
	ErrInitialState = errors.New("process already at initial stage")

	// ErrPrecursorNotTerminal is returned when a clawback is requested
	// before the batch's disbursement reached its terminal stage.
	ErrPrecursorNotTerminal = errors.New("disbursement not terminal")

	// ErrProcessExists is returned when creating a second process of the
	// same kind for a batch.
	ErrProcessExists = errors.New("process already exists for batch")

	// ErrProcessNotFound is returned for unknown process IDs.
	ErrProcessNotFound = errors.New("process not found")

	// ErrConcurrentModification is returned when the optimistic status
	// check detects that the process changed between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry stage context for user-visible messages
// =============================================================================

// TerminalStateError reports an advance attempted past the last stage.
type TerminalStateError struct {
	Kind  Kind
	Stage Stage
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("%s process is already at terminal stage %s", e.Kind, e.Stage)
}

func (e *TerminalStateError) Unwrap() error { return ErrTerminalState }

// InitialStateError reports a revert attempted before the first stage.
type InitialStateError struct {
	Kind  Kind
	Stage Stage
}

func (e *InitialStateError) Error() string {
	return fmt.Sprintf("%s process is already at initial stage %s", e.Kind, e.Stage)
}

func (e *InitialStateError) Unwrap() error { return ErrInitialState }

// PrecursorNotTerminalError reports a clawback requested too early.
type PrecursorNotTerminalError struct {
	BatchID  string
	Current  Stage
	Required Stage
}

func (e *PrecursorNotTerminalError) Error() string {
	return fmt.Sprintf("batch %s: disbursement at %s, clawback requires %s",
		e.BatchID, e.Current, e.Required)
}

func (e *PrecursorNotTerminalError) Unwrap() error { return ErrPrecursorNotTerminal }
