package selector_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/punchclock/internal/dom"
	"github.com/xkilldash9x/punchclock/internal/selector"
)

func TestCheck(t *testing.T) {
	doc := parse(t, `<button id="in">In</button><a class="x">1</a><a class="x">2</a>`)
	in := find(t, doc, "#in")
	first := find(t, doc, "a")

	tests := []struct {
		name    string
		sel     string
		reason  selector.MismatchReason
		matches int
		target  bool
	}{
		{name: "sole match", sel: "#in", target: true},
		{name: "no match", sel: "#out", reason: selector.MismatchNone},
		{name: "many matches", sel: "a.x", reason: selector.MismatchMany, matches: 2},
		{name: "different element", sel: "a:nth-of-type(1)", reason: selector.MismatchDifferent, matches: 1},
		{name: "invalid selector", sel: "button[", reason: selector.MismatchInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := selector.Check(doc, tt.sel, in)
			if tt.target {
				assert.NoError(t, err)
				assert.True(t, selector.Validate(doc, tt.sel, in))
				return
			}
			var mismatch *selector.ValidationMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.reason, mismatch.Reason)
			assert.Equal(t, tt.matches, mismatch.Matches)
			assert.Equal(t, tt.sel, mismatch.Selector)
			assert.Contains(t, err.Error(), string(tt.reason))
			assert.False(t, selector.Validate(doc, tt.sel, in))
		})
	}

	assert.True(t, selector.Validate(doc, "a:nth-of-type(1)", first))

	err := selector.Check(doc, "button[", in)
	var invalid *dom.InvalidSelectorError
	assert.True(t, errors.As(err, &invalid), "parser error stays reachable")
}

// A selector validated against one DOM can stop validating after a re-render.
func TestValidateAfterReRender(t *testing.T) {
	doc := parse(t, `<div class="jss1"><span>a</span><span>b</span></div>`)
	target := find(t, doc, "span:nth-of-type(2)")

	sel, err := selector.Generate(doc, target)
	require.NoError(t, err)
	require.True(t, selector.Validate(doc, sel, target))

	parent := doc.ParentElement(target)
	fresh := dom.CreateElement("span")
	require.NoError(t, doc.ReplaceChild(parent, fresh, target))

	assert.False(t, selector.Validate(doc, sel, target))
	assert.True(t, selector.Validate(doc, sel, fresh))
}
