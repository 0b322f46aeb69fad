package common

import "errors"

// Sentinel domain errors mapped to the error taxonomy of §7: wrap with
// fmt.Errorf("...: %w", ErrNotFound) at the point of detection and test
// with errors.Is at the boundary that translates to an HTTP status.
var (
	// ErrNotFound - requested entity absent (404).
	ErrNotFound = errors.New("not found")
	// ErrValidation - malformed input (400).
	ErrValidation = errors.New("validation failed")
	// ErrConflict - terminal-state transition or missing prerequisite (400).
	ErrConflict = errors.New("conflict")
)
