package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/punchclock/internal/dom"
)

func TestDispatchPhases(t *testing.T) {
	doc := mustParse(t, samplePage)
	body := doc.Body()
	li, _ := doc.Query("#special")
	ul := doc.ParentElement(li)

	var order []string
	record := func(name string) dom.Listener {
		return func(e *dom.Event) { order = append(order, name) }
	}
	doc.AddEventListener(doc.Root(), dom.EventClick, record("document-capture"), true)
	doc.AddEventListener(doc.Root(), dom.EventClick, record("document-bubble"), false)
	doc.AddEventListener(body, dom.EventClick, record("body-capture"), true)
	doc.AddEventListener(ul, dom.EventClick, record("ul-bubble"), false)
	doc.AddEventListener(li, dom.EventClick, record("target-bubble"), false)
	doc.AddEventListener(li, dom.EventClick, record("target-capture"), true)
	doc.AddEventListener(li, dom.EventKeyDown, record("wrong-type"), false)

	assert.True(t, doc.Click(li))
	assert.Equal(t, []string{
		"document-capture",
		"body-capture",
		"target-bubble",
		"target-capture",
		"ul-bubble",
		"document-bubble",
	}, order)
}

func TestStopPropagationAndPreventDefault(t *testing.T) {
	doc := mustParse(t, samplePage)
	li, _ := doc.Query("#special")

	var reached []string
	doc.AddEventListener(doc.Root(), dom.EventClick, func(e *dom.Event) {
		assert.Equal(t, dom.PhaseCapturing, e.Phase)
		assert.Same(t, li, e.Target)
		e.PreventDefault()
		e.StopPropagation()
		reached = append(reached, "document")
	}, true)
	doc.AddEventListener(doc.Root(), dom.EventClick, func(e *dom.Event) {
		reached = append(reached, "document-second")
	}, true)
	doc.AddEventListener(li, dom.EventClick, func(e *dom.Event) {
		reached = append(reached, "target")
	}, false)

	assert.False(t, doc.Click(li))
	assert.Equal(t, []string{"document", "document-second"}, reached, "listeners on the current node still run")
}

func TestListenerRemovedDuringDispatch(t *testing.T) {
	doc := mustParse(t, samplePage)
	li, _ := doc.Query("#special")

	calls := 0
	var second *dom.ListenerHandle
	doc.AddEventListener(li, dom.EventClick, func(*dom.Event) { second.Remove() }, false)
	second = doc.AddEventListener(li, dom.EventClick, func(*dom.Event) { calls++ }, false)

	doc.Click(li)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, doc.ListenerCount(li, dom.EventClick))

	second.Remove()
	var nilHandle *dom.ListenerHandle
	nilHandle.Remove()
}

func TestNonBubblingEvent(t *testing.T) {
	doc := mustParse(t, samplePage)
	li, _ := doc.Query("#special")

	bubbled := false
	doc.AddEventListener(doc.Root(), "focus", func(*dom.Event) { bubbled = true }, false)
	doc.Dispatch(li, &dom.Event{Type: "focus"})
	assert.False(t, bubbled)
}

func TestPanickingListenerIsRecovered(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	doc, err := dom.ParseString(samplePage, "https://example.com/", dom.WithLogger(zap.New(core)))
	require.NoError(t, err)
	li, _ := doc.Query("#special")

	after := false
	doc.AddEventListener(li, dom.EventClick, func(*dom.Event) { panic("boom") }, false)
	doc.AddEventListener(li, dom.EventClick, func(*dom.Event) { after = true }, false)

	assert.NotPanics(t, func() { doc.Click(li) })
	assert.True(t, after)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Recovered from panic in callback.", logs.All()[0].Message)
}

func TestKeyDownAndHover(t *testing.T) {
	doc := mustParse(t, samplePage)
	li, _ := doc.Query("#special")
	header, _ := doc.Query("#header")

	var keys []string
	doc.AddEventListener(doc.Root(), dom.EventKeyDown, func(e *dom.Event) { keys = append(keys, e.Key) }, true)
	doc.KeyDown("Escape")
	assert.Equal(t, []string{"Escape"}, keys)

	var seq []string
	doc.AddEventListener(doc.Root(), dom.EventPointerOver, func(e *dom.Event) { seq = append(seq, "over:"+dom.TagName(e.Target)) }, true)
	doc.AddEventListener(doc.Root(), dom.EventPointerOut, func(e *dom.Event) { seq = append(seq, "out:"+dom.TagName(e.Target)) }, true)
	doc.Hover(nil, header)
	doc.Hover(header, li)
	assert.Equal(t, []string{"over:div", "out:div", "over:li"}, seq)
}
