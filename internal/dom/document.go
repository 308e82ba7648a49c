// internal/dom/document.go
package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a live, mutable HTML document. It plays the role of the browser
// page: CSS queries, tree mutations, events and mutation observers all go through it.
//
// Every method is safe for concurrent use. Listener and observer callbacks are
// always invoked with the internal lock released, so callbacks may freely query
// and mutate the document.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	url       *url.URL
	listeners map[*html.Node][]*listener
	observers []*Observer
	logger    *zap.Logger
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used to report panicking callbacks.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger.Named("dom")
		}
	}
}

// Parse reads an HTML page and wraps it in a Document located at pageURL.
func Parse(r io.Reader, pageURL string, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return NewDocument(root, pageURL, opts...)
}

// ParseString is Parse for an in-memory page.
func ParseString(page, pageURL string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(page), pageURL, opts...)
}

// NewDocument wraps an already parsed tree. root must be an html.DocumentNode.
func NewDocument(root *html.Node, pageURL string, opts ...Option) (*Document, error) {
	if root == nil || root.Type != html.DocumentNode {
		return nil, fmt.Errorf("document root must be a document node")
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}
	d := &Document{
		root:      root,
		url:       u,
		listeners: make(map[*html.Node][]*listener),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Root returns the document node. Listeners registered on it see every event
// dispatched inside the document.
func (d *Document) Root() *html.Node { return d.root }

// URL returns a copy of the page location.
func (d *Document) URL() *url.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := *d.url
	return &u
}

// Navigate changes the page location without touching the tree.
func (d *Document) Navigate(pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}
	d.mu.Lock()
	d.url = u
	d.mu.Unlock()
	return nil
}

// Origin returns scheme://host[:port] of the page location.
func (d *Document) Origin() string {
	return Origin(d.URL())
}

// Origin formats the origin of u the way browsers serialize location.origin.
func Origin(u *url.URL) string {
	if u == nil || u.Scheme == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Path returns the page path, "/" when empty.
func (d *Document) Path() string {
	p := d.URL().Path
	if p == "" {
		return "/"
	}
	return p
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bodyLocked()
}

func (d *Document) bodyLocked() *html.Node {
	return findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
}

// Title returns the trimmed text of the first <title> element.
func (d *Document) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Title
	})
	if t == nil {
		return ""
	}
	return strings.TrimSpace(textContent(t))
}

// -- Queries --

func compile(sel string) (cascadia.SelectorGroup, error) {
	group, err := cascadia.ParseGroup(sel)
	if err != nil {
		return nil, &InvalidSelectorError{Selector: sel, Err: err}
	}
	return group, nil
}

// Query returns the first element in document order matching sel, or nil.
func (d *Document) Query(sel string) (*html.Node, error) {
	group, err := compile(sel)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return cascadia.Query(d.root, group), nil
}

// QueryAll returns every element matching sel in document order.
func (d *Document) QueryAll(sel string) ([]*html.Node, error) {
	group, err := compile(sel)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return cascadia.QueryAll(d.root, group), nil
}

// Count returns the number of elements matching sel.
func (d *Document) Count(sel string) (int, error) {
	all, err := d.QueryAll(sel)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// QueryWithin returns the first descendant of scope matching sel.
func (d *Document) QueryWithin(scope *html.Node, sel string) (*html.Node, error) {
	group, err := compile(sel)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return cascadia.Query(scope, group), nil
}

// -- Tree Walking Helpers --

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if pred(c) {
			return c
		}
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}
