// internal/dom/node.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CreateElement returns a detached element. Attach it with AppendChild.
func CreateElement(tag string, attrs ...html.Attribute) *html.Node {
	tag = strings.ToLower(tag)
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	n.Attr = append(n.Attr, attrs...)
	return n
}

// CreateText returns a detached text node.
func CreateText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// A is shorthand for building an html.Attribute.
func A(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// TagName returns the lowercase tag name of an element, or "".
func TagName(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// -- Locked Accessors --

// Attr returns the value of the named attribute and whether it is present.
func (d *Document) Attr(n *html.Node, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return attrLocked(n, key)
}

func attrLocked(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute is present.
func (d *Document) HasAttr(n *html.Node, key string) bool {
	_, ok := d.Attr(n, key)
	return ok
}

// Attrs returns a copy of the attributes of n in declaration order.
func (d *Document) Attrs(n *html.Node) []html.Attribute {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n == nil {
		return nil
	}
	out := make([]html.Attribute, len(n.Attr))
	copy(out, n.Attr)
	return out
}

// Classes returns the whitespace separated tokens of the class attribute in declaration order.
func (d *Document) Classes(n *html.Node) []string {
	v, _ := d.Attr(n, "class")
	return strings.Fields(v)
}

// Parent returns the parent of n, or nil when n is detached.
func (d *Document) Parent(n *html.Node) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n == nil {
		return nil
	}
	return n.Parent
}

// ParentElement returns the parent of n when it is an element.
func (d *Document) ParentElement(n *html.Node) *html.Node {
	p := d.Parent(n)
	if !IsElement(p) {
		return nil
	}
	return p
}

// Children returns the element children of n.
func (d *Document) Children(n *html.Node) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// TypeIndex returns the 1-based position of n among its element siblings with
// the same tag, and the number of such siblings including n.
func (d *Document) TypeIndex(n *html.Node) (index, total int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !IsElement(n) || n.Parent == nil {
		return 1, 1
	}
	tag := TagName(n)
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if TagName(c) != tag {
			continue
		}
		total++
		if c == n {
			index = total
		}
	}
	return index, total
}

// Contains reports whether other is ancestor or self.
func (d *Document) Contains(ancestor, other *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return containsLocked(ancestor, other)
}

func containsLocked(ancestor, other *html.Node) bool {
	for n := other; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// IsConnected reports whether n is attached to this document.
func (d *Document) IsConnected(n *html.Node) bool {
	return d.Contains(d.root, n)
}

// TextContent returns the concatenated text below n.
func (d *Document) TextContent(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return textContent(n)
}

// ByID returns the first element whose id equals id.
func (d *Document) ByID(id string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findFirst(d.root, func(n *html.Node) bool {
		v, ok := attrLocked(n, "id")
		return n.Type == html.ElementNode && ok && v == id
	})
}
