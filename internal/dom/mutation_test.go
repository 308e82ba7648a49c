package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/internal/dom"
)

func TestObserveChildList(t *testing.T) {
	doc := mustParse(t, samplePage)
	body := doc.Body()

	var got []dom.MutationRecord
	obs := doc.Observe(body, dom.ObserveOptions{ChildList: true, Subtree: true}, func(recs []dom.MutationRecord) {
		got = append(got, recs...)
	})

	ul, err := doc.Query("ul")
	require.NoError(t, err)

	li := dom.CreateElement("li")
	require.NoError(t, doc.AppendChild(ul, li))
	require.Len(t, got, 1)
	assert.Equal(t, dom.MutationChildList, got[0].Type)
	assert.Same(t, ul, got[0].Target)
	assert.Equal(t, []*html.Node{li}, got[0].Added)

	// Attribute changes are not requested.
	doc.SetAttr(li, "class", "new")
	assert.Len(t, got, 1)

	require.NoError(t, doc.RemoveChild(ul, li))
	require.Len(t, got, 2)
	assert.Equal(t, []*html.Node{li}, got[1].Removed)

	obs.Disconnect()
	obs.Disconnect()
	require.NoError(t, doc.AppendChild(ul, dom.CreateElement("li")))
	assert.Len(t, got, 2, "no delivery after disconnect")
}

func TestObserveWithoutSubtree(t *testing.T) {
	doc := mustParse(t, samplePage)
	body := doc.Body()

	calls := 0
	doc.Observe(body, dom.ObserveOptions{ChildList: true}, func([]dom.MutationRecord) { calls++ })

	ul, _ := doc.Query("ul")
	require.NoError(t, doc.AppendChild(ul, dom.CreateElement("li")))
	assert.Equal(t, 0, calls)

	require.NoError(t, doc.AppendChild(body, dom.CreateElement("footer")))
	assert.Equal(t, 1, calls)
}

func TestObserveAttributes(t *testing.T) {
	doc := mustParse(t, samplePage)
	li, _ := doc.Query("#special")

	var got []dom.MutationRecord
	doc.Observe(doc.Root(), dom.ObserveOptions{Attributes: true, Subtree: true}, func(recs []dom.MutationRecord) {
		got = append(got, recs...)
	})

	doc.SetAttr(li, "data-x", "1")
	doc.SetAttr(li, "data-x", "2")
	doc.RemoveAttr(li, "data-x")
	doc.RemoveAttr(li, "data-x")

	require.Len(t, got, 3)
	assert.Equal(t, "data-x", got[1].AttributeName)
	assert.Equal(t, "1", got[1].OldValue)
	assert.Equal(t, "2", got[2].OldValue)
}

func TestCallbackMayMutate(t *testing.T) {
	doc := mustParse(t, samplePage)
	body := doc.Body()

	depth := 0
	doc.Observe(body, dom.ObserveOptions{ChildList: true}, func([]dom.MutationRecord) {
		depth++
		if depth == 1 {
			// Re-entrant mutation must not deadlock.
			require.NoError(t, doc.AppendChild(body, dom.CreateElement("aside")))
		}
	})

	require.NoError(t, doc.AppendChild(body, dom.CreateElement("footer")))
	assert.Equal(t, 2, depth)
	n, _ := doc.Count("body > aside")
	assert.Equal(t, 1, n)
}

func TestMovePreservesListenersRemovalDropsThem(t *testing.T) {
	doc := mustParse(t, samplePage)
	body := doc.Body()
	header, _ := doc.Query("#header")

	btn := dom.CreateElement("button")
	require.NoError(t, doc.AppendChild(header, btn))
	h := doc.AddEventListener(btn, dom.EventClick, func(*dom.Event) {}, false)

	require.NoError(t, doc.AppendChild(body, btn))
	assert.True(t, h.Active())
	assert.Equal(t, 1, doc.ListenerCount(btn, dom.EventClick))

	require.NoError(t, doc.RemoveChild(body, header))
	assert.True(t, h.Active(), "listener on a node outside the removed subtree survives")

	require.NoError(t, doc.RemoveChild(body, btn))
	assert.False(t, h.Active())
	assert.Equal(t, 0, doc.ListenerCount(btn, dom.EventClick))

	assert.ErrorIs(t, doc.RemoveChild(body, btn), dom.ErrNotChild)
}

func TestReplaceChild(t *testing.T) {
	doc := mustParse(t, samplePage)
	ul, _ := doc.Query("ul")
	old, _ := doc.Query("#special")
	h := doc.AddEventListener(old, dom.EventClick, func(*dom.Event) {}, false)

	fresh := dom.CreateElement("li", dom.A("id", "special"))
	require.NoError(t, doc.ReplaceChild(ul, fresh, old))

	n, _ := doc.Query("#special")
	assert.Same(t, fresh, n)
	assert.False(t, doc.IsConnected(old))
	assert.False(t, h.Active())
}

func TestReplaceBodyKeepsBodyIdentity(t *testing.T) {
	doc := mustParse(t, samplePage)
	body := doc.Body()
	oldBtn, _ := doc.Query("#header")
	h := doc.AddEventListener(oldBtn, dom.EventClick, func(*dom.Event) {}, true)

	var recs []dom.MutationRecord
	doc.Observe(body, dom.ObserveOptions{ChildList: true, Subtree: true}, func(r []dom.MutationRecord) { recs = append(recs, r...) })

	snapshot, err := dom.ParseString(`<html><body class="v2"><div id="header">New</div></body></html>`, "https://portal.example.com/rh/ponto")
	require.NoError(t, err)
	require.NoError(t, doc.ReplaceBody(snapshot.Body()))

	assert.Same(t, body, doc.Body())
	assert.Equal(t, []string{"v2"}, doc.Classes(body))
	fresh, _ := doc.Query("#header")
	assert.NotSame(t, oldBtn, fresh)
	assert.Equal(t, "New", doc.TextContent(fresh))
	assert.False(t, h.Active())

	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].Removed)
	assert.Len(t, recs[0].Added, 1)
}

func TestInsertIntoOwnSubtreeFails(t *testing.T) {
	doc := mustParse(t, samplePage)
	content, _ := doc.Query("div.content")
	ul, _ := doc.Query("ul")
	assert.Error(t, doc.AppendChild(ul, content))
}
