// internal/selector/errors.go
package selector

import (
	"errors"
	"fmt"
)

// ErrSelectorGeneration means no usable selector could be produced for an element.
// Validation failures right after generation are reported under this kind too.
var ErrSelectorGeneration = errors.New("selector generation failed")

// MismatchReason classifies why a selector did not resolve to the expected element.
type MismatchReason string

const (
	MismatchNone      MismatchReason = "no element matched"
	MismatchMany      MismatchReason = "more than one element matched"
	MismatchDifferent MismatchReason = "a different element matched"
	MismatchInvalid   MismatchReason = "selector could not be parsed"
)

// ValidationMismatchError reports a selector that does not resolve to exactly the expected element.
type ValidationMismatchError struct {
	Selector string
	Matches  int
	Reason   MismatchReason
	Err      error
}

// Error implements the error interface.
func (e *ValidationMismatchError) Error() string {
	return fmt.Sprintf("selector '%s' failed validation: %s (%d matches)", e.Selector, e.Reason, e.Matches)
}

// Unwrap exposes the query error for invalid selectors.
func (e *ValidationMismatchError) Unwrap() error {
	return e.Err
}
