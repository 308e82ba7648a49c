// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/punchclock/internal/config"
)

const (
	bindingName       = "__punchclockEvent"
	defaultNavTimeout = 60 * time.Second
	eventBuffer       = 16

	// LiveBannerID is the banner shown in the live tab while picking.
	LiveBannerID = "punchclock-live-banner"
	pickOutline  = "2px solid #e8590c"
	pickBanner   = "punchclock: click the time clock button, or press Escape to cancel"
)

// pageHookJS reports clicks to the binding with the target's positional XPath.
// In pick mode it also swallows the page's own click handling, outlines the
// hovered element, shows a banner, locks scrolling and reports Escape.
var pageHookJS = fmt.Sprintf(`(() => {
	if (window.__punchclockHooked) return;
	window.__punchclockHooked = true;
	const report = (ev) => {
		if (typeof window.%[1]s === 'function') window.%[1]s(JSON.stringify(ev));
	};
	const pathOf = (el) => {
		const steps = [];
		for (let n = el; n && n.nodeType === 1; n = n.parentElement) {
			let i = 1;
			for (let p = n.previousElementSibling; p; p = p.previousElementSibling) {
				if (p.localName === n.localName) i++;
			}
			steps.unshift(n.localName + '[' + i + ']');
		}
		return '/' + steps.join('/');
	};
	const state = {picking: false, outlined: null, outline: '', overflow: ''};
	const ours = (el) => el instanceof Element && el.closest('#%[2]s') !== null;
	const restoreOutline = () => {
		if (state.outlined) {
			state.outlined.style.outline = state.outline;
			state.outlined = null;
		}
	};
	const suppress = (e) => {
		if (!state.picking) return;
		e.preventDefault();
		e.stopImmediatePropagation();
	};
	window.__punchclockSetPicking = (on) => {
		on = !!on;
		try { sessionStorage.setItem('__punchclockPicking', on ? '1' : ''); } catch (_) {}
		if (on === state.picking) return;
		state.picking = on;
		const root = document.documentElement;
		let banner = document.getElementById('%[2]s');
		if (on) {
			state.overflow = root.style.overflow;
			root.style.overflow = 'hidden';
			if (!banner && document.body) {
				banner = document.createElement('div');
				banner.id = '%[2]s';
				banner.textContent = %[3]q;
				banner.style.cssText = 'position:fixed;top:0;left:0;right:0;z-index:2147483647;padding:8px;' +
					'background:#212529;color:#fff;font:14px sans-serif;text-align:center;pointer-events:none';
				document.body.appendChild(banner);
			}
		} else {
			root.style.overflow = state.overflow;
			if (banner) banner.remove();
			restoreOutline();
		}
	};
	document.addEventListener('click', (e) => {
		if (!(e.target instanceof Element) || ours(e.target)) return;
		suppress(e);
		report({type: 'click', path: pathOf(e.target)});
	}, true);
	for (const type of ['pointerdown', 'pointerup', 'mousedown', 'mouseup', 'dblclick', 'auxclick', 'submit']) {
		document.addEventListener(type, suppress, true);
	}
	document.addEventListener('mouseover', (e) => {
		if (!state.picking || !(e.target instanceof Element) || ours(e.target)) return;
		restoreOutline();
		state.outlined = e.target;
		state.outline = e.target.style.outline;
		e.target.style.outline = %[4]q;
	}, true);
	document.addEventListener('keydown', (e) => {
		if (!state.picking || e.key !== 'Escape') return;
		suppress(e);
		report({type: 'keydown', key: e.key});
	}, true);
	const resume = () => {
		try {
			if (sessionStorage.getItem('__punchclockPicking')) window.__punchclockSetPicking(true);
		} catch (_) {}
	};
	if (document.readyState === 'loading') {
		document.addEventListener('DOMContentLoaded', resume);
	} else {
		resume();
	}
})();`, bindingName, LiveBannerID, pickBanner, pickOutline)

// Snapshot is the state of the live page at one poll.
type Snapshot struct {
	URL   string
	Title string
	HTML  string
}

// Event types reported by the live page.
const (
	EventClick   = "click"
	EventKeyDown = "keydown"
)

// Event is something the user did in the live page.
type Event struct {
	Type string `json:"type"`
	// Path is a positional XPath from the html element down to a click target.
	Path string `json:"path,omitempty"`
	// Key is set for keydown events.
	Key string `json:"key,omitempty"`
}

// Page is the live page the bridge mirrors.
type Page interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Events() <-chan Event
}

// Chrome drives a Chrome tab over the DevTools protocol.
type Chrome struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	events    chan Event
	closeOnce sync.Once
}

// Launch starts a browser process and one tab, and hooks click reporting into
// every document the tab loads.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Chrome, error) {
	c := &Chrome{
		cfg:    cfg,
		logger: logger.Named("browser"),
		events: make(chan Event, eventBuffer),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(c.logger.Sugar().Errorf))
	c.allocCancel, c.ctx, c.cancel = allocCancel, tabCtx, cancel

	// The first Run allocates the browser and must use the long-lived tab context.
	if err := chromedp.Run(tabCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	chromedp.ListenTarget(tabCtx, c.onEvent)

	err := c.run(ctx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(pageHookJS).Do(ctx)
			return err
		}),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	c.logger.Info("Browser launched.", zap.Bool("headless", cfg.Headless))
	return c, nil
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("disable-gpu", c.cfg.Headless),
	)
	for _, arg := range c.cfg.Args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// run executes actions on the tab, bounded by the navigation timeout and by ctx.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	timeout := c.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavTimeout
	}
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) onEvent(msg interface{}) {
	e, ok := msg.(*runtime.EventBindingCalled)
	if !ok || e.Name != bindingName {
		return
	}
	ev, err := decodeEvent(e.Payload)
	if err != nil {
		c.logger.Debug("Malformed page event.", zap.String("payload", e.Payload), zap.Error(err))
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("Page event dropped; bridge is not keeping up.", zap.String("type", ev.Type))
	}
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		ev.Type = EventClick
	}
	switch {
	case ev.Type == EventClick && ev.Path == "":
		return Event{}, errors.New("click without a path")
	case ev.Type == EventKeyDown && ev.Key == "":
		return Event{}, errors.New("keydown without a key")
	case ev.Type != EventClick && ev.Type != EventKeyDown:
		return Event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return ev, nil
}

// Navigate loads url in the tab and waits for the body.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.logger.Info("Navigating.", zap.String("url", url))
	if err := c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Snapshot implements Page.
func (c *Chrome) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.run(ctx,
		chromedp.Location(&s.URL),
		chromedp.Title(&s.Title),
		chromedp.OuterHTML("html", &s.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to snapshot page: %w", err)
	}
	return s, nil
}

// Done is closed when the tab or the browser goes away.
func (c *Chrome) Done() <-chan struct{} { return c.ctx.Done() }

// Events implements Page.
func (c *Chrome) Events() <-chan Event { return c.events }

// SetPicking switches the live page in or out of pick mode. In pick mode
// clicks no longer reach the page's own handlers and Escape is reported.
func (c *Chrome) SetPicking(ctx context.Context, on bool) error {
	expr := fmt.Sprintf("window.__punchclockSetPicking && window.__punchclockSetPicking(%t)", on)
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, exc, err := runtime.Evaluate(expr).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to set pick mode: %w", err)
	}
	c.logger.Debug("Pick mode changed.", zap.Bool("picking", on))
	return nil
}

// Close shuts the tab and the browser process down. Idempotent.
func (c *Chrome) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.allocCancel != nil {
			c.allocCancel()
		}
		c.logger.Info("Browser closed.")
	})
}
