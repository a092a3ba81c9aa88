// Package fault defines the error kinds shared by the analysis, archive,
// quantization and synthesis packages.
//
// Errors are wrapped with fmt.Errorf("%w: ...") and matched with errors.Is.
// Nothing in this module retries; callers decide whether to skip a note or
// abort a batch.
package fault

import "errors"

var (
	// ErrConfig reports invalid parameters (non-positive rates, degenerate durations).
	ErrConfig = errors.New("invalid configuration")
	// ErrNotFound reports that no value satisfies the requested constraints.
	ErrNotFound = errors.New("not found")
	// ErrInputShape reports a malformed input signal or a note too short to render.
	ErrInputShape = errors.New("invalid input shape")
	// ErrDataIntegrity reports corrupt archives or values no encoding can represent.
	ErrDataIntegrity = errors.New("data integrity violation")
)
