// internal/dom/style.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

type declaration struct {
	prop  string
	value string
}

func parseStyle(s string) []declaration {
	var out []declaration
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, value: value})
	}
	return out
}

func formatStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.value+";")
	}
	return strings.Join(parts, " ")
}

// Style returns the inline value of a CSS property, or "" when unset.
func (d *Document) Style(n *html.Node, prop string) string {
	raw, _ := d.Attr(n, "style")
	prop = strings.ToLower(prop)
	for _, decl := range parseStyle(raw) {
		if decl.prop == prop {
			return decl.value
		}
	}
	return ""
}

// SetStyle sets an inline CSS property. An empty value removes the property,
// and the style attribute goes away once it has no declarations left.
func (d *Document) SetStyle(n *html.Node, prop, value string) {
	raw, _ := d.Attr(n, "style")
	prop = strings.ToLower(strings.TrimSpace(prop))
	value = strings.TrimSpace(value)

	decls := parseStyle(raw)
	found := false
	kept := decls[:0]
	for _, decl := range decls {
		if decl.prop == prop {
			found = true
			if value == "" {
				continue
			}
			decl.value = value
		}
		kept = append(kept, decl)
	}
	if !found && value != "" {
		kept = append(kept, declaration{prop: prop, value: value})
	}

	if len(kept) == 0 {
		d.RemoveAttr(n, "style")
		return
	}
	d.SetAttr(n, "style", formatStyle(kept))
}
