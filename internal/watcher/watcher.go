// Package watcher keeps a click listener attached to the configured time clock
// button while the page re-renders around it.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/config"
	"github.com/xkilldash9x/punchclock/internal/dom"
	"github.com/xkilldash9x/punchclock/internal/hostctx"
	"github.com/xkilldash9x/punchclock/internal/notify"
	"github.com/xkilldash9x/punchclock/internal/store"
)

const (
	// MarkerAttr is set on the element that currently carries the watcher's listener.
	MarkerAttr = "data-punchclock-attached"
	// IndicatorClass marks the badge shown on the monitored button.
	IndicatorClass = "punchclock-indicator"

	indicatorStyle = "display: inline-block; width: 8px; height: 8px; margin-left: 6px; border-radius: 50%; background: #00b894;"
	indicatorTitle = "punchclock is monitoring this button"
)

// Defaults used when no configuration is supplied.
const (
	DefaultMutationDebounce = 3 * time.Second
	DefaultClickDebounce    = time.Second
	DefaultMaxBuffer        = 1000
	DefaultMaxDelay         = 10 * time.Second
)

// EntryRecorder stores a clock entry and returns the entries of that day.
type EntryRecorder interface {
	Record(ctx context.Context, at time.Time, source schemas.EntrySource) ([]schemas.Entry, error)
}

// AlarmUpdater reschedules the exit alarm after a new entry.
type AlarmUpdater interface {
	UpdateAlarm(ctx context.Context) error
}

// Watcher resolves the persisted selector on start, on every debounced batch
// of DOM mutations and on Refresh, and binds one click listener per element
// instance. Resolution never runs concurrently with itself.
type Watcher struct {
	doc      *dom.Document
	store    store.Store
	recorder EntryRecorder
	alarm    AlarmUpdater
	notifier notify.Notifier
	probe    hostctx.Probe
	now      func() time.Time
	log      *zap.Logger

	mutationDebounce time.Duration
	clickDebounce    time.Duration
	maxBuffer        int
	maxDelay         time.Duration

	mu          sync.Mutex
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	observer    *dom.Observer
	timer       *time.Timer
	pending     int
	batchStart  time.Time
	lastClick   time.Time
	unsubscribe func()
	wg          sync.WaitGroup

	// Binding state, guarded by resolveMu.
	resolveMu sync.Mutex
	bound     *html.Node
	handle    *dom.ListenerHandle
	indicator *html.Node
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.log = logger
		}
	}
}

// WithClock overrides the wall clock used for entries and the click debounce.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		if now != nil {
			w.now = now
		}
	}
}

// WithMutationDebounce sets the quiet period after which a mutation batch is processed.
func WithMutationDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.mutationDebounce = d
		}
	}
}

// WithClickDebounce sets the window within which repeated clicks count once.
func WithClickDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.clickDebounce = d
		}
	}
}

// WithBatchLimits flushes a mutation batch early once it holds maxBuffer
// records or has been pending for maxDelay, so a page that never goes quiet
// is still resolved.
func WithBatchLimits(maxBuffer int, maxDelay time.Duration) Option {
	return func(w *Watcher) {
		if maxBuffer > 0 {
			w.maxBuffer = maxBuffer
		}
		if maxDelay > 0 {
			w.maxDelay = maxDelay
		}
	}
}

// WithConfig applies the watcher section of the configuration.
// A false Notify drops the notifier.
func WithConfig(cfg config.WatcherConfig) Option {
	return func(w *Watcher) {
		WithMutationDebounce(cfg.MutationDebounce)(w)
		WithClickDebounce(cfg.ClickDebounce)(w)
		if !cfg.Notify {
			w.notifier = nil
		}
	}
}

// WithAlarm sets the alarm to reschedule after each recorded click.
func WithAlarm(a AlarmUpdater) Option {
	return func(w *Watcher) { w.alarm = a }
}

// WithNotifier sets where "entry recorded" confirmations go.
func WithNotifier(n notify.Notifier) Option {
	return func(w *Watcher) { w.notifier = n }
}

// WithProbe sets the host liveness probe.
func WithProbe(p hostctx.Probe) Option {
	return func(w *Watcher) {
		if p != nil {
			w.probe = p
		}
	}
}

// New returns a stopped Watcher. When s is a *store.Guarded its probe is used
// unless WithProbe says otherwise.
func New(doc *dom.Document, s store.Store, recorder EntryRecorder, opts ...Option) *Watcher {
	w := &Watcher{
		doc:              doc,
		store:            s,
		recorder:         recorder,
		probe:            hostctx.Always{},
		now:              time.Now,
		log:              zap.NewNop(),
		mutationDebounce: DefaultMutationDebounce,
		clickDebounce:    DefaultClickDebounce,
		maxBuffer:        DefaultMaxBuffer,
		maxDelay:         DefaultMaxDelay,
		ctx:              context.Background(),
	}
	if g, ok := s.(*store.Guarded); ok {
		w.probe = g.Probe()
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named("watcher")
	return w
}

// Start observes the document and performs the initial resolution.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.probe.Check(); err != nil {
		return err
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	target := w.doc.Body()
	if target == nil {
		target = w.doc.Root()
	}
	w.observer = w.doc.Observe(target, dom.ObserveOptions{ChildList: true, Subtree: true}, w.onMutations)
	w.running = true
	runCtx := w.ctx
	w.mu.Unlock()

	unsubscribe := hostctx.Subscribe(w.probe, w.onInvalidated)
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		unsubscribe()
		return hostctx.ErrContextInvalidated
	}
	w.unsubscribe = unsubscribe
	w.mu.Unlock()

	w.log.Info("Watcher started.",
		zap.String("url", w.doc.URL().String()),
		zap.Duration("mutation_debounce", w.mutationDebounce),
		zap.Duration("click_debounce", w.clickDebounce))
	return w.resolveAndHandle(runCtx)
}

// Stop disconnects the observer, cancels the pending batch, waits for
// in-flight callbacks and detaches from the bound element. Idempotent.
func (w *Watcher) Stop() {
	if !w.shutdown() {
		return
	}
	w.wg.Wait()
	w.resolveMu.Lock()
	w.releaseLocked()
	w.resolveMu.Unlock()
	w.log.Info("Watcher stopped.")
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Bound returns the element currently carrying the listener, or nil.
func (w *Watcher) Bound() *html.Node {
	w.resolveMu.Lock()
	defer w.resolveMu.Unlock()
	return w.bound
}

// Refresh resolves the button right away, outside the mutation debounce.
func (w *Watcher) Refresh(ctx context.Context) error {
	if !w.Running() {
		return nil
	}
	return w.resolveAndHandle(ctx)
}

// shutdown flips the watcher to stopped and releases timers and the observer.
// It reports whether the watcher was running.
func (w *Watcher) shutdown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return false
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = 0
	w.batchStart = time.Time{}
	if w.observer != nil {
		w.observer.Disconnect()
		w.observer = nil
	}
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	w.cancel()
	return true
}

// onInvalidated runs when the host goes away.
func (w *Watcher) onInvalidated() {
	if !w.shutdown() {
		return
	}
	w.log.Warn("Host context invalidated; watcher torn down. Reload the page to resume.")
	w.resolveMu.Lock()
	w.releaseLocked()
	w.resolveMu.Unlock()
}

// -- mutation batching --

// own reports whether every record only touches the watcher's indicator.
func (w *Watcher) own(records []dom.MutationRecord) bool {
	for _, rec := range records {
		for _, n := range append(append([]*html.Node(nil), rec.Added...), rec.Removed...) {
			if !w.isIndicator(n) {
				return false
			}
		}
		if len(rec.Added) == 0 && len(rec.Removed) == 0 {
			return false
		}
	}
	return true
}

func (w *Watcher) isIndicator(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	for _, c := range w.doc.Classes(n) {
		if c == IndicatorClass {
			return true
		}
	}
	return false
}

func (w *Watcher) onMutations(records []dom.MutationRecord) {
	if w.own(records) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.batchStart.IsZero() {
		w.batchStart = time.Now()
	}
	w.pending += len(records)

	delay := w.mutationDebounce
	if w.pending >= w.maxBuffer || time.Since(w.batchStart) >= w.maxDelay {
		delay = 0
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(delay, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.pending = 0
	w.batchStart = time.Time{}
	ctx := w.ctx
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.log.Debug("Processing mutation batch.")
	if err := w.resolveAndHandle(ctx); err != nil && !errors.Is(err, hostctx.ErrContextInvalidated) {
		w.log.Warn("Button resolution failed.", zap.Error(err))
	}
}

// -- resolution --

// PageMatches reports whether a page at origin+path is where cfg was captured.
// Sub-routes of the configured path match too.
func PageMatches(cfg schemas.TargetElementConfig, origin, path string) bool {
	return origin == cfg.PageOrigin && strings.HasPrefix(path, cfg.PagePath)
}

// resolveAndHandle resolves and turns host invalidation into a teardown.
func (w *Watcher) resolveAndHandle(ctx context.Context) error {
	err := w.resolve(ctx)
	if errors.Is(err, hostctx.ErrContextInvalidated) {
		w.onInvalidated()
	}
	return err
}

func (w *Watcher) resolve(ctx context.Context) error {
	w.resolveMu.Lock()
	defer w.resolveMu.Unlock()

	if !w.Running() {
		return nil
	}
	if err := w.probe.Check(); err != nil {
		return err
	}

	if w.bound != nil && !w.doc.IsConnected(w.bound) {
		w.log.Debug("Bound button left the page.")
		w.releaseLocked()
	}

	var cfg schemas.TargetElementConfig
	err := store.GetJSON(ctx, w.store, schemas.KeyButtonConfig, &cfg)
	if errors.Is(err, store.ErrNotFound) || (err == nil && cfg.Selector == "") {
		w.log.Debug("No button configured.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load button configuration: %w", err)
	}

	if !PageMatches(cfg, w.doc.Origin(), w.doc.Path()) {
		w.log.Debug("Page does not match the configured button page.",
			zap.String("origin", w.doc.Origin()),
			zap.String("path", w.doc.Path()))
		return nil
	}

	el, err := w.doc.Query(cfg.Selector)
	if err != nil {
		return fmt.Errorf("configured selector is unusable: %w", err)
	}
	if el == nil {
		w.log.Debug("Configured button not on the page yet.", zap.String("selector", cfg.Selector))
		return nil
	}

	if !w.doc.HasAttr(el, MarkerAttr) {
		w.bindLocked(el)
	}
	w.ensureIndicatorLocked(el)
	return nil
}

func (w *Watcher) bindLocked(el *html.Node) {
	w.releaseLocked()
	w.handle = w.doc.AddEventListener(el, dom.EventClick, w.handleClick, false)
	w.doc.SetAttr(el, MarkerAttr, "true")
	w.bound = el
	w.log.Info("Listener attached to button.", zap.String("xpath", w.doc.XPath(el)))
}

// releaseLocked drops the listener, marker and indicator of the bound element.
func (w *Watcher) releaseLocked() {
	if w.handle != nil {
		w.handle.Remove()
		w.handle = nil
	}
	if w.bound != nil {
		w.doc.RemoveAttr(w.bound, MarkerAttr)
		w.bound = nil
	}
	if w.indicator != nil {
		w.doc.Remove(w.indicator)
		w.indicator = nil
	}
}

func (w *Watcher) ensureIndicatorLocked(el *html.Node) {
	if existing, _ := w.doc.QueryWithin(el, "."+IndicatorClass); existing != nil {
		w.indicator = existing
		return
	}
	ind := dom.CreateElement("span",
		dom.A("class", IndicatorClass),
		dom.A("title", indicatorTitle),
		dom.A("style", indicatorStyle))
	if err := w.doc.AppendChild(el, ind); err != nil {
		w.log.Warn("Failed to add the monitoring indicator.", zap.Error(err))
		return
	}
	w.indicator = ind
}

// -- clicks --

func (w *Watcher) handleClick(*dom.Event) {
	now := w.now()
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	if !w.lastClick.IsZero() && now.Sub(w.lastClick) < w.clickDebounce {
		w.mu.Unlock()
		w.log.Debug("Duplicate click ignored.", zap.Duration("since_last", now.Sub(w.lastClick)))
		return
	}
	w.lastClick = now
	ctx := w.ctx
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.record(ctx, now)
}

func (w *Watcher) record(ctx context.Context, at time.Time) {
	entries, err := w.recorder.Record(ctx, at, schemas.SourceAuto)
	if err != nil {
		if errors.Is(err, hostctx.ErrContextInvalidated) {
			w.onInvalidated()
			return
		}
		w.log.Error("Failed to record entry.", zap.Error(err))
		w.notify(ctx, schemas.Notification{
			Title:    "punchclock",
			Message:  "Could not record the entry: " + err.Error(),
			Priority: schemas.PriorityNormal,
		})
		return
	}

	if w.alarm != nil {
		if err := w.alarm.UpdateAlarm(ctx); err != nil {
			w.log.Warn("Failed to update the exit alarm.", zap.Error(err))
		}
	}
	w.notify(ctx, schemas.Notification{
		Title:    "Entry recorded",
		Message:  fmt.Sprintf("Entry %d recorded at %s", len(entries), at.Format("15:04:05")),
		Priority: schemas.PriorityLow,
	})
}

func (w *Watcher) notify(ctx context.Context, n schemas.Notification) {
	if w.notifier == nil {
		return
	}
	if _, err := w.notifier.Notify(ctx, n); err != nil {
		w.log.Debug("Notification not delivered.", zap.Error(err))
	}
}
