// Package picker implements the interactive element picker: a transient mode
// in which the next click on the page chooses the time clock button.
package picker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/dom"
	"github.com/xkilldash9x/punchclock/internal/hostctx"
	"github.com/xkilldash9x/punchclock/internal/selector"
	"github.com/xkilldash9x/punchclock/internal/store"
)

// Ids of the elements the picker adds to the page.
const (
	OverlayID = "punchclock-picker-overlay"
	BannerID  = "punchclock-picker-banner"
)

// HighlightOutline is applied to the hovered element.
const HighlightOutline = "3px solid #667eea"

const (
	overlayStyle = "position: fixed; inset: 0; background: rgba(0, 0, 0, 0.3); z-index: 2147483646; pointer-events: none;"
	bannerStyle  = "position: fixed; top: 20px; left: 50%; transform: translateX(-50%); z-index: 2147483647; padding: 12px 24px; background: #667eea; color: white; border-radius: 8px; pointer-events: none;"
	bannerText   = "Click the time clock button to select it. Press ESC to cancel."
)

// ErrCancelled is reported in the Outcome of a pick that ended without a choice.
var ErrCancelled = errors.New("element picking cancelled")

// State is the picker mode.
type State int

const (
	StateIdle State = iota
	StateActive
	// StatePicked lasts while a chosen element is being processed.
	StatePicked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePicked:
		return "picked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is emitted once per activation.
type Outcome struct {
	// Config is the persisted configuration. Zero unless Err is nil.
	Config   schemas.TargetElementConfig
	Strategy selector.Strategy
	Element  *html.Node
	// Err is ErrCancelled for Escape or Stop, hostctx.ErrContextInvalidated when
	// the host went away, and wraps selector.ErrSelectorGeneration when no valid
	// selector could be produced.
	Err error
}

// Picker runs the Idle -> Active -> (Idle | Picked) state machine over a document.
type Picker struct {
	doc       *dom.Document
	store     store.Store
	probe     hostctx.Probe
	now       func() time.Time
	log       *zap.Logger
	onOutcome func(Outcome)

	mu           sync.Mutex
	state        State
	ctx          context.Context
	handles      []*dom.ListenerHandle
	overlay      *html.Node
	banner       *html.Node
	hovered      *html.Node
	saved        map[*html.Node]savedOutline
	prevOverflow string
	unsubscribe  func()
	waiters      []chan Outcome
}

type savedOutline struct {
	outline string
	offset  string
}

// Option configures a Picker.
type Option func(*Picker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Picker) {
		if logger != nil {
			p.log = logger
		}
	}
}

// WithClock overrides the clock used for CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Picker) {
		if now != nil {
			p.now = now
		}
	}
}

// WithProbe sets the host liveness probe. An active picker stops when the probe is invalidated.
func WithProbe(probe hostctx.Probe) Option {
	return func(p *Picker) {
		if probe != nil {
			p.probe = probe
		}
	}
}

// OnOutcome registers fn to receive every outcome.
func OnOutcome(fn func(Outcome)) Option {
	return func(p *Picker) { p.onOutcome = fn }
}

// New returns an idle Picker. When s is a *store.Guarded its probe is used
// unless WithProbe says otherwise.
func New(doc *dom.Document, s store.Store, opts ...Option) *Picker {
	p := &Picker{
		doc:   doc,
		store: s,
		probe: hostctx.Always{},
		now:   time.Now,
		log:   zap.NewNop(),
		saved: make(map[*html.Node]savedOutline),
	}
	if g, ok := s.(*store.Guarded); ok {
		p.probe = g.Probe()
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("picker")
	return p
}

// State returns the current mode.
func (p *Picker) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start enters picking mode. It is a no-op while already active.
func (p *Picker) Start(ctx context.Context) error {
	if err := p.probe.Check(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil
	}
	body := p.doc.Body()
	if body == nil {
		p.mu.Unlock()
		return dom.ErrNoBody
	}

	p.ctx = ctx
	p.overlay = dom.CreateElement("div", dom.A("id", OverlayID), dom.A("style", overlayStyle))
	p.banner = dom.CreateElement("div", dom.A("id", BannerID), dom.A("style", bannerStyle))
	p.banner.AppendChild(dom.CreateText(bannerText))
	if err := p.doc.AppendChild(body, p.overlay); err != nil {
		p.overlay, p.banner = nil, nil
		p.mu.Unlock()
		return fmt.Errorf("failed to add overlay: %w", err)
	}
	if err := p.doc.AppendChild(body, p.banner); err != nil {
		p.doc.Remove(p.overlay)
		p.overlay, p.banner = nil, nil
		p.mu.Unlock()
		return fmt.Errorf("failed to add banner: %w", err)
	}

	p.prevOverflow = p.doc.Style(body, "overflow")
	p.doc.SetStyle(body, "overflow", "hidden")

	root := p.doc.Root()
	p.handles = []*dom.ListenerHandle{
		p.doc.AddEventListener(root, dom.EventPointerOver, p.handlePointerOver, true),
		p.doc.AddEventListener(root, dom.EventPointerOut, p.handlePointerOut, true),
		p.doc.AddEventListener(root, dom.EventClick, p.handleClick, true),
		p.doc.AddEventListener(root, dom.EventKeyDown, p.handleKeyDown, true),
	}
	p.state = StateActive
	p.mu.Unlock()
	p.log.Info("Picker activated.", zap.String("url", p.doc.URL().String()))

	// Subscribing may run the callback at once when the host is already gone,
	// so it happens outside the lock.
	unsubscribe := hostctx.Subscribe(p.probe, p.handleInvalidated)
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		unsubscribe()
		return nil
	}
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
	return nil
}

// Stop leaves picking mode without choosing anything. Safe from any state.
func (p *Picker) Stop() {
	p.finish(Outcome{Err: ErrCancelled})
}

// Pick starts the picker and waits for its outcome. Cancelling ctx stops the picker.
func (p *Picker) Pick(ctx context.Context) (Outcome, error) {
	ch := make(chan Outcome, 1)
	p.mu.Lock()
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	if err := p.Start(ctx); err != nil {
		p.dropWaiter(ch)
		return Outcome{}, err
	}
	select {
	case o := <-ch:
		return o, nil
	case <-ctx.Done():
		p.Stop()
		return Outcome{}, ctx.Err()
	}
}

func (p *Picker) dropWaiter(ch chan Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// finish tears down an active picker and emits o. No-op while idle.
func (p *Picker) finish(o Outcome) {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	p.teardownLocked()
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	if o.Err != nil {
		p.log.Info("Picker finished without a selection.", zap.Error(o.Err))
	}
	p.emit(o, waiters)
}

func (p *Picker) emit(o Outcome, waiters []chan Outcome) {
	for _, w := range waiters {
		w <- o
	}
	if p.onOutcome != nil {
		p.onOutcome(o)
	}
}

func (p *Picker) teardownLocked() {
	for _, h := range p.handles {
		h.Remove()
	}
	p.handles = nil
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	for n := range p.saved {
		p.restoreLocked(n)
	}
	p.hovered = nil
	if p.overlay != nil {
		p.doc.Remove(p.overlay)
		p.overlay = nil
	}
	if p.banner != nil {
		p.doc.Remove(p.banner)
		p.banner = nil
	}
	if body := p.doc.Body(); body != nil {
		p.doc.SetStyle(body, "overflow", p.prevOverflow)
	}
	p.prevOverflow = ""
	p.state = StateIdle
	p.log.Debug("Picker deactivated.")
}

// ours reports whether n belongs to the picker's own overlay or banner.
func (p *Picker) ours(n *html.Node) bool {
	return n == nil ||
		(p.overlay != nil && p.doc.Contains(p.overlay, n)) ||
		(p.banner != nil && p.doc.Contains(p.banner, n))
}

func (p *Picker) highlightLocked(n *html.Node) {
	if _, ok := p.saved[n]; !ok {
		p.saved[n] = savedOutline{
			outline: p.doc.Style(n, "outline"),
			offset:  p.doc.Style(n, "outline-offset"),
		}
	}
	p.doc.SetStyle(n, "outline", HighlightOutline)
	p.doc.SetStyle(n, "outline-offset", "2px")
	p.hovered = n
}

func (p *Picker) restoreLocked(n *html.Node) {
	s, ok := p.saved[n]
	if !ok {
		return
	}
	p.doc.SetStyle(n, "outline", s.outline)
	p.doc.SetStyle(n, "outline-offset", s.offset)
	delete(p.saved, n)
	if p.hovered == n {
		p.hovered = nil
	}
}

func (p *Picker) handlePointerOver(e *dom.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive || !dom.IsElement(e.Target) || p.ours(e.Target) {
		return
	}
	if p.hovered != nil && p.hovered != e.Target {
		p.restoreLocked(p.hovered)
	}
	p.highlightLocked(e.Target)
}

func (p *Picker) handlePointerOut(e *dom.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return
	}
	p.restoreLocked(e.Target)
}

func (p *Picker) handleKeyDown(e *dom.Event) {
	if e.Key != "Escape" || p.State() != StateActive {
		return
	}
	e.PreventDefault()
	e.StopPropagation()
	p.log.Debug("Picker cancelled with Escape.")
	p.Stop()
}

func (p *Picker) handleInvalidated() {
	p.finish(Outcome{Err: hostctx.ErrContextInvalidated})
}

func (p *Picker) handleClick(e *dom.Event) {
	p.mu.Lock()
	if p.state != StateActive || p.ours(e.Target) || !dom.IsElement(e.Target) {
		p.mu.Unlock()
		return
	}
	e.PreventDefault()
	e.StopPropagation()

	target := e.Target
	p.restoreLocked(target)
	p.state = StatePicked
	ctx := p.ctx
	p.mu.Unlock()

	o := p.process(ctx, target)
	p.finish(o)
}

// process synthesizes, validates and persists the selector for target.
func (p *Picker) process(ctx context.Context, target *html.Node) Outcome {
	o := Outcome{Element: target}

	cand, err := selector.Synthesize(p.doc, target)
	if err != nil {
		o.Err = err
		p.log.Warn("Could not generate a selector.", zap.Error(err))
		return o
	}
	if err := selector.Check(p.doc, cand.Selector, target); err != nil {
		o.Err = fmt.Errorf("%w: %w", selector.ErrSelectorGeneration, err)
		p.log.Warn("Generated selector failed validation; choose a different element.",
			zap.String("selector", cand.Selector), zap.Error(err))
		return o
	}

	u := p.doc.URL()
	cfg := schemas.TargetElementConfig{
		Selector:   cand.Selector,
		PageOrigin: dom.Origin(u),
		PagePath:   p.doc.Path(),
		PageTitle:  p.doc.Title(),
		CapturedAt: p.now().UTC(),
	}
	if err := p.probe.Check(); err != nil {
		o.Err = err
		return o
	}
	if err := store.SetJSON(ctx, p.store, schemas.KeyButtonConfig, cfg); err != nil {
		if errors.Is(err, hostctx.ErrContextInvalidated) {
			o.Err = err
		} else {
			o.Err = fmt.Errorf("failed to save button configuration: %w", err)
		}
		p.log.Error("Failed to persist the selected button.", zap.Error(err))
		return o
	}

	o.Config = cfg
	o.Strategy = cand.Strategy
	p.log.Info("Button selected.",
		zap.String("selector", cfg.Selector),
		zap.String("strategy", string(cand.Strategy)),
		zap.String("origin", cfg.PageOrigin),
		zap.String("path", cfg.PagePath))
	return o
}
