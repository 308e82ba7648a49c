// internal/selector/synthesize.go
package selector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/internal/dom"
)

// maxClassPathDepth bounds how far the class-path strategy climbs toward body.
const maxClassPathDepth = 5

// Strategy names the rule that produced a selector.
type Strategy string

const (
	StrategyID         Strategy = "id"
	StrategyTestAttr   Strategy = "test-attribute"
	StrategyAriaLabel  Strategy = "aria-label"
	StrategyDataAttr   Strategy = "data-attribute"
	StrategyClassPath  Strategy = "class-path"
	StrategyPositional Strategy = "positional"
)

// Candidate is a synthesized selector together with the node it was derived from.
type Candidate struct {
	Selector string
	Node     *html.Node
	Strategy Strategy
}

// Generate returns a CSS selector for el. See Synthesize.
func Generate(doc *dom.Document, el *html.Node) (string, error) {
	c, err := Synthesize(doc, el)
	if err != nil {
		return "", err
	}
	return c.Selector, nil
}

// Synthesize walks the strategy chain and returns the first selector that succeeds:
//
//  1. #id, trusted.
//  2. [data-testid="..."] then [data-test="..."], trusted.
//  3. tag[aria-label="..."] when it matches exactly one element.
//  4. tag[data-*="..."] for the first data attribute (name without "test" or "id") matching exactly one element.
//  5. The shortest unique "tag.c1.c2.c3 > ..." path climbing at most five levels below body.
//  6. A positional path from the body down, with :nth-of-type(n) where same-tag siblings exist.
//
// Ids and test attributes are not re-checked for uniqueness. A page with
// duplicate ids therefore yields an ambiguous selector, which Validate rejects.
func Synthesize(doc *dom.Document, el *html.Node) (Candidate, error) {
	if doc == nil || !dom.IsElement(el) {
		return Candidate{}, fmt.Errorf("%w: target is not an element", ErrSelectorGeneration)
	}
	if !doc.IsConnected(el) {
		return Candidate{}, fmt.Errorf("%w: target is not attached to the document", ErrSelectorGeneration)
	}

	for _, strategy := range []func(*dom.Document, *html.Node) (string, Strategy, bool){
		byID,
		byTestAttr,
		byAriaLabel,
		byDataAttr,
		byClassPath,
	} {
		if sel, name, ok := strategy(doc, el); ok {
			return Candidate{Selector: sel, Node: el, Strategy: name}, nil
		}
	}

	sel := positionalPath(doc, el)
	if sel == "" {
		return Candidate{}, fmt.Errorf("%w: no path from target to the document root", ErrSelectorGeneration)
	}
	return Candidate{Selector: sel, Node: el, Strategy: StrategyPositional}, nil
}

func unique(doc *dom.Document, sel string) bool {
	n, err := doc.Count(sel)
	return err == nil && n == 1
}

func attrSelector(prefix, name, value string) string {
	return fmt.Sprintf(`%s[%s="%s"]`, prefix, Escape(name), Escape(value))
}

// -- Strategies --

func byID(doc *dom.Document, el *html.Node) (string, Strategy, bool) {
	id, _ := doc.Attr(el, "id")
	if id == "" {
		return "", "", false
	}
	return "#" + Escape(id), StrategyID, true
}

func byTestAttr(doc *dom.Document, el *html.Node) (string, Strategy, bool) {
	for _, name := range []string{"data-testid", "data-test"} {
		if v, _ := doc.Attr(el, name); v != "" {
			return attrSelector("", name, v), StrategyTestAttr, true
		}
	}
	return "", "", false
}

func byAriaLabel(doc *dom.Document, el *html.Node) (string, Strategy, bool) {
	label, _ := doc.Attr(el, "aria-label")
	if label == "" {
		return "", "", false
	}
	sel := attrSelector(dom.TagName(el), "aria-label", label)
	return sel, StrategyAriaLabel, unique(doc, sel)
}

func byDataAttr(doc *dom.Document, el *html.Node) (string, Strategy, bool) {
	tag := dom.TagName(el)
	for _, a := range doc.Attrs(el) {
		if a.Namespace != "" || !strings.HasPrefix(a.Key, "data-") || a.Val == "" {
			continue
		}
		if strings.Contains(a.Key, "test") || strings.Contains(a.Key, "id") {
			continue
		}
		if sel := attrSelector(tag, a.Key, a.Val); unique(doc, sel) {
			return sel, StrategyDataAttr, true
		}
	}
	return "", "", false
}

func classStep(doc *dom.Document, n *html.Node) string {
	step := dom.TagName(n)
	for _, c := range StableClasses(doc, n) {
		step += "." + Escape(c)
	}
	return step
}

func byClassPath(doc *dom.Document, el *html.Node) (string, Strategy, bool) {
	body := doc.Body()
	var parts []string
	for cur, depth := el, 0; dom.IsElement(cur) && cur != body && depth < maxClassPathDepth; cur, depth = doc.ParentElement(cur), depth+1 {
		parts = append([]string{classStep(doc, cur)}, parts...)
		if sel := strings.Join(parts, " > "); unique(doc, sel) {
			return sel, StrategyClassPath, true
		}
	}
	return "", "", false
}

// positionalPath anchors the path at body (or html for nodes outside body) so
// it can only match the one element at that position.
func positionalPath(doc *dom.Document, el *html.Node) string {
	body := doc.Body()
	var parts []string
	cur := el
	for ; dom.IsElement(cur); cur = doc.ParentElement(cur) {
		if cur == body {
			break
		}
		parent := doc.ParentElement(cur)
		if parent == nil {
			// The root element: nothing above it to anchor to.
			break
		}
		step := dom.TagName(cur)
		if idx, total := doc.TypeIndex(cur); total > 1 {
			step += fmt.Sprintf(":nth-of-type(%d)", idx)
		}
		parts = append([]string{step}, parts...)
	}
	if !dom.IsElement(cur) {
		return ""
	}
	parts = append([]string{dom.TagName(cur)}, parts...)
	return strings.Join(parts, " > ")
}
