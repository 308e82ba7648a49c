package dom_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/punchclock/internal/dom"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>  Ponto Eletrônico </title></head>
<body class="app">
	<div id="header"><h1>Welcome</h1></div>
	<div class="content">
		<p>P1</p><p>P2</p>
		<ul>
			<li>Item 1</li>
			<li>Item 2</li>
			<li id="special">Item 3</li>
		</ul>
	</div>
	<div class="content"><p>P3</p></div>
</body>
</html>`

func mustParse(t *testing.T, page string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(page, "https://portal.example.com/rh/ponto?tab=1")
	require.NoError(t, err)
	return doc
}

func TestParseAndLocation(t *testing.T) {
	doc := mustParse(t, samplePage)

	assert.Equal(t, "https://portal.example.com", doc.Origin())
	assert.Equal(t, "/rh/ponto", doc.Path())
	assert.Equal(t, "Ponto Eletrônico", doc.Title())

	body := doc.Body()
	require.NotNil(t, body)
	assert.Equal(t, "body", dom.TagName(body))
	assert.Equal(t, []string{"app"}, doc.Classes(body))

	require.NoError(t, doc.Navigate("https://portal.example.com/"))
	assert.Equal(t, "/", doc.Path())
}

func TestNewDocumentRejectsNonDocumentRoot(t *testing.T) {
	_, err := dom.NewDocument(dom.CreateElement("div"), "https://example.com/")
	assert.Error(t, err)
}

func TestQueries(t *testing.T) {
	doc := mustParse(t, samplePage)

	n, err := doc.Query("#special")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "Item 3", doc.TextContent(n))

	all, err := doc.QueryAll("div.content p")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	count, err := doc.Count("li")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	none, err := doc.Query("button")
	require.NoError(t, err)
	assert.Nil(t, none)

	content, err := doc.Query("div.content")
	require.NoError(t, err)
	inner, err := doc.QueryWithin(content, "li:nth-of-type(2)")
	require.NoError(t, err)
	assert.Equal(t, "Item 2", doc.TextContent(inner))
}

func TestInvalidSelector(t *testing.T) {
	doc := mustParse(t, samplePage)

	_, err := doc.QueryAll("div[")
	require.Error(t, err)

	var invalid *dom.InvalidSelectorError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "div[", invalid.Selector)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestElementHelpers(t *testing.T) {
	doc := mustParse(t, samplePage)

	li, err := doc.Query("#special")
	require.NoError(t, err)

	idx, total := doc.TypeIndex(li)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 3, total)

	ul := doc.ParentElement(li)
	require.NotNil(t, ul)
	assert.Equal(t, "ul", dom.TagName(ul))
	assert.Len(t, doc.Children(ul), 3)
	assert.True(t, doc.Contains(ul, li))
	assert.False(t, doc.Contains(li, ul))
	assert.True(t, doc.IsConnected(li))

	assert.Same(t, li, doc.ByID("special"))

	v, ok := doc.Attr(li, "id")
	assert.True(t, ok)
	assert.Equal(t, "special", v)
	assert.False(t, doc.HasAttr(li, "class"))

	detached := dom.CreateElement("SPAN", dom.A("class", "x y"))
	assert.Equal(t, "span", dom.TagName(detached))
	assert.False(t, doc.IsConnected(detached))
	assert.Equal(t, []string{"x", "y"}, doc.Classes(detached))
}
