// internal/dom/errors.go
package dom

import (
	"errors"
	"fmt"
)

// ErrNotChild is returned when a mutation names a child that does not belong to the given parent.
var ErrNotChild = errors.New("node is not a child of the given parent")

// ErrNoBody is returned by operations that need the document body when the document has none.
var ErrNoBody = errors.New("document has no body element")

// InvalidSelectorError reports a selector the query engine could not parse.
type InvalidSelectorError struct {
	Selector string
	Err      error
}

// Error implements the error interface.
func (e *InvalidSelectorError) Error() string {
	return fmt.Sprintf("invalid selector '%s': %v", e.Selector, e.Err)
}

// Unwrap provides the parser error for use with errors.Is/As.
func (e *InvalidSelectorError) Unwrap() error {
	return e.Err
}
