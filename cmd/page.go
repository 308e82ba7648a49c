// File: cmd/page.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/internal/browser"
	"github.com/xkilldash9x/punchclock/internal/config"
	"github.com/xkilldash9x/punchclock/internal/dom"
)

// pageFlags selects the page a command works on: a saved HTML file served
// under --url, or the live page at --url when --file is absent.
type pageFlags struct {
	file string
	url  string
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.file, "file", "f", "", "saved HTML page to work on instead of a live browser")
	cmd.Flags().StringVarP(&p.url, "url", "u", "", "address of the time clock page")
	_ = cmd.MarkFlagRequired("url")
}

func (p *pageFlags) live() bool { return p.file == "" }

// loadFile parses the saved page as if it were served from p.url.
func (p *pageFlags) loadFile(logger *zap.Logger) (*dom.Document, error) {
	f, err := os.Open(p.file)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()
	return dom.Parse(f, p.url, dom.WithLogger(logger))
}

// livePage is a browser tab on --url and the document mirroring it.
type livePage struct {
	chrome *browser.Chrome
	doc    *dom.Document
	snap   browser.Snapshot
}

// bridge keeps doc in step with the tab, starting from the snapshot doc was built from.
func (l *livePage) bridge(cfg config.BrowserConfig, logger *zap.Logger, opts ...browser.BridgeOption) *browser.Bridge {
	opts = append([]browser.BridgeOption{browser.WithBaseline(l.snap)}, opts...)
	return browser.NewBridge(l.chrome, l.doc, cfg, logger, opts...)
}

// openLive launches the browser, loads p.url and mirrors it.
func (p *pageFlags) openLive(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*livePage, error) {
	chrome, err := browser.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := chrome.Navigate(ctx, p.url); err != nil {
		chrome.Close()
		return nil, err
	}
	doc, snap, err := browser.Mirror(ctx, chrome, dom.WithLogger(logger))
	if err != nil {
		chrome.Close()
		return nil, err
	}
	return &livePage{chrome: chrome, doc: doc, snap: snap}, nil
}

// targetFlags names one element by CSS selector or XPath.
type targetFlags struct {
	selector string
	xpath    string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.selector, "selector", "s", "", "CSS selector of the element")
	cmd.Flags().StringVarP(&t.xpath, "xpath", "x", "", "XPath of the element")
	cmd.MarkFlagsMutuallyExclusive("selector", "xpath")
}

func (t *targetFlags) set() bool { return t.selector != "" || t.xpath != "" }

// resolve finds the element in doc.
func (t *targetFlags) resolve(doc *dom.Document) (*html.Node, error) {
	var (
		n   *html.Node
		err error
	)
	switch {
	case t.selector != "":
		n, err = doc.Query(t.selector)
	case t.xpath != "":
		n, err = doc.FindXPath(t.xpath)
	default:
		return nil, errors.New("pass --selector or --xpath to name the element")
	}
	if err != nil {
		return nil, err
	}
	if n == nil || !dom.IsElement(n) {
		return nil, errors.New("no element matches the given target")
	}
	return n, nil
}
