// internal/browser/bridge.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/punchclock/internal/config"
	"github.com/xkilldash9x/punchclock/internal/dom"
)

const defaultPollInterval = 2 * time.Second

// Bridge mirrors a live Page into a dom.Document. Body changes become DOM
// mutations and live clicks are replayed on the mirrored element, so code
// written against the Document sees the real page.
type Bridge struct {
	page     Page
	doc      *dom.Document
	interval time.Duration
	logger   *zap.Logger

	afterSync func(context.Context) error

	mu       sync.Mutex
	lastURL  string
	lastHTML string
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBaseline records the snapshot doc was built from, so a page that has
// not changed since is not re-applied.
func WithBaseline(snap Snapshot) BridgeOption {
	return func(b *Bridge) {
		b.lastURL = snap.URL
		b.lastHTML = snap.HTML
	}
}

// WithAfterSync runs fn after the sync that precedes every forwarded click,
// before the click is dispatched. Components that attach listeners to the
// mirror use it to catch up with a body that was just replaced.
func WithAfterSync(fn func(context.Context) error) BridgeOption {
	return func(b *Bridge) { b.afterSync = fn }
}

// NewBridge returns a Bridge polling page every cfg.PollInterval.
func NewBridge(page Page, doc *dom.Document, cfg config.BrowserConfig, logger *zap.Logger, opts ...BridgeOption) *Bridge {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	b := &Bridge{
		page:     page,
		doc:      doc,
		interval: interval,
		logger:   logger.Named("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mirror builds a fresh Document from one snapshot of page. The snapshot is
// returned for WithBaseline.
func Mirror(ctx context.Context, page Page, opts ...dom.Option) (*dom.Document, Snapshot, error) {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return nil, Snapshot{}, err
	}
	doc, err := dom.ParseString(snap.HTML, snap.URL, opts...)
	if err != nil {
		return nil, Snapshot{}, err
	}
	return doc, snap, nil
}

// Sync pulls one snapshot into the document. It reports whether anything changed.
func (b *Bridge) Sync(ctx context.Context) (bool, error) {
	snap, err := b.page.Snapshot(ctx)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false
	if snap.URL != b.lastURL {
		if err := b.doc.Navigate(snap.URL); err != nil {
			return false, err
		}
		b.logger.Debug("Page URL changed.", zap.String("url", snap.URL))
		b.lastURL = snap.URL
		changed = true
	}
	if snap.HTML != b.lastHTML {
		fresh, err := dom.ParseString(snap.HTML, snap.URL)
		if err != nil {
			return changed, err
		}
		body := fresh.Body()
		if body == nil {
			return changed, dom.ErrNoBody
		}
		if err := b.doc.ReplaceBody(body); err != nil {
			return changed, fmt.Errorf("failed to apply snapshot: %w", err)
		}
		b.lastHTML = snap.HTML
		changed = true
	}
	return changed, nil
}

// Run polls the page and forwards page events until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("Bridge running.", zap.Duration("poll_interval", b.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := b.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Warn("Snapshot failed.", zap.Error(err))
			}
		case ev, ok := <-b.page.Events():
			if !ok {
				b.logger.Info("Page closed the event stream.")
				return nil
			}
			b.forward(ctx, ev)
		}
	}
}

// forward replays a live page event on the mirror.
func (b *Bridge) forward(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventKeyDown:
		b.doc.KeyDown(ev.Key)
	case EventClick:
		b.click(ctx, ev.Path)
	default:
		b.logger.Debug("Ignoring page event.", zap.String("type", ev.Type))
	}
}

// click syncs the page, lets the after-sync hook rebind, then dispatches the
// click on the mirrored element at path.
func (b *Bridge) click(ctx context.Context, path string) {
	if _, err := b.Sync(ctx); err != nil {
		b.logger.Debug("Sync before click failed.", zap.Error(err))
	}
	if b.afterSync != nil {
		if err := b.afterSync(ctx); err != nil {
			b.logger.Debug("After-sync hook failed.", zap.Error(err))
		}
	}
	target, err := b.doc.FindXPath(path)
	if err != nil {
		b.logger.Warn("Unusable click path.", zap.String("path", path), zap.Error(err))
		return
	}
	if target == nil {
		b.logger.Debug("Clicked element is not in the mirror.", zap.String("path", path))
		return
	}
	b.doc.Click(target)
}
