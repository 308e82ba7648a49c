// internal/selector/escape.go
package selector

import (
	"fmt"
	"strings"
)

// Escape serializes s as a CSS identifier following the CSSOM CSS.escape()
// algorithm. The result is also safe inside a double-quoted attribute value.
func Escape(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			sb.WriteRune('\uFFFD')
		case (r >= 0x1 && r <= 0x1f) || r == 0x7f:
			hexEscape(&sb, r)
		case i == 0 && r >= '0' && r <= '9':
			hexEscape(&sb, r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			hexEscape(&sb, r)
		case i == 0 && r == '-' && len(runes) == 1:
			sb.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
			sb.WriteRune(r)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func hexEscape(sb *strings.Builder, r rune) {
	fmt.Fprintf(sb, `\%x `, r)
}
