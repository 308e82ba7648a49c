// internal/selector/validate.go
package selector

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/internal/dom"
)

// Validate reports whether expected is the one and only element sel matches.
func Validate(doc *dom.Document, sel string, expected *html.Node) bool {
	return Check(doc, sel, expected) == nil
}

// Check is Validate with the reason for a mismatch.
func Check(doc *dom.Document, sel string, expected *html.Node) error {
	matches, err := doc.QueryAll(sel)
	if err != nil {
		return &ValidationMismatchError{Selector: sel, Reason: MismatchInvalid, Err: err}
	}
	switch {
	case len(matches) == 0:
		return &ValidationMismatchError{Selector: sel, Reason: MismatchNone}
	case len(matches) > 1:
		return &ValidationMismatchError{Selector: sel, Matches: len(matches), Reason: MismatchMany}
	case matches[0] != expected:
		return &ValidationMismatchError{Selector: sel, Matches: 1, Reason: MismatchDifferent}
	}
	return nil
}
