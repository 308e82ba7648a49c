// internal/selector/stable.go
package selector

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/internal/dom"
)

// maxStableClasses bounds how many classes a single path step may carry.
const maxStableClasses = 3

// Class names emitted by CSS-in-JS tooling and JIT utility frameworks. They
// change between builds or renders, so they never identify an element.
var generatedClassPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^jss\d+$`),
	regexp.MustCompile(`(?i)^css-[a-z0-9]+$`),
	regexp.MustCompile(`^\w+-\d+-\d+-\d+$`),
	regexp.MustCompile(`(?i)^sc-[a-z0-9]+$`),
	regexp.MustCompile(`^emotion-\d+$`),
	regexp.MustCompile(`(?i)^[a-z0-9]{6,}$`),
	regexp.MustCompile(`^makeStyles-\w+-\d+$`),
}

// IsStable reports whether a class name looks hand-authored. Generated hashes
// and state classes (hover*, active*) are unstable.
func IsStable(className string) bool {
	if className == "" {
		return false
	}
	for _, re := range generatedClassPatterns {
		if re.MatchString(className) {
			return false
		}
	}
	return !strings.HasPrefix(className, "hover") && !strings.HasPrefix(className, "active")
}

// StableClasses returns up to the first three stable classes of el in declaration order.
func StableClasses(doc *dom.Document, el *html.Node) []string {
	var out []string
	for _, c := range doc.Classes(el) {
		if !IsStable(c) {
			continue
		}
		out = append(out, c)
		if len(out) == maxStableClasses {
			break
		}
	}
	return out
}
