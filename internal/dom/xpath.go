// internal/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPath returns an absolute XPath for n, anchored at the nearest ancestor with
// an id. It is used for log output and for the CLI's --xpath round trip.
func (d *Document) XPath(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return xpathOf(n)
}

func xpathOf(node *html.Node) string {
	if node == nil {
		return ""
	}
	var steps []string
	anchored := false
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if id := htmlquery.SelectAttr(n, "id"); id != "" && !strings.Contains(id, "'") {
			steps = append(steps, fmt.Sprintf(`//*[@id='%s']`, id))
			anchored = true
			break
		}
		tag := TagName(n)
		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if TagName(prev) == tag {
				index++
			}
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, index))
	}
	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	path := strings.Join(steps, "/")
	if !anchored {
		path = "/" + path
	}
	return path
}

// FindXPath returns the first node matching expr.
func (d *Document) FindXPath(expr string) (*html.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := htmlquery.Query(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return n, nil
}
