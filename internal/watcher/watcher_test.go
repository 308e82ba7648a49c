package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/config"
	"github.com/xkilldash9x/punchclock/internal/dom"
	"github.com/xkilldash9x/punchclock/internal/hostctx"
	"github.com/xkilldash9x/punchclock/internal/mocks"
	"github.com/xkilldash9x/punchclock/internal/notify"
	"github.com/xkilldash9x/punchclock/internal/store"
	"github.com/xkilldash9x/punchclock/internal/timeclock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	pageURL = "https://portal.example.com/ponto/home?tab=1"
	page    = `<!DOCTYPE html>
<html><head><title>Ponto</title></head>
<body>
<main>
	<div id="toolbar"><button id="clock-in">Clock In</button></div>
	<ul id="feed"></ul>
</main>
</body></html>`
)

var buttonConfig = schemas.TargetElementConfig{
	Selector:   "#clock-in",
	PageOrigin: "https://portal.example.com",
	PagePath:   "/ponto",
	CapturedAt: time.Date(2025, 3, 7, 7, 55, 0, 0, time.UTC),
}

// countingStore counts reads of the button configuration, one per resolution.
type countingStore struct {
	store.Store
	reads atomic.Int32
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == schemas.KeyButtonConfig {
		c.reads.Add(1)
	}
	return c.Store.Get(ctx, key)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	doc     *dom.Document
	mem     *store.Memory
	store   *countingStore
	clock   *clock
	ledger  *timeclock.Ledger
	notes   *notify.Recorder
	watcher *Watcher
}

func newFixture(t *testing.T, configured bool, opts ...Option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	doc, err := dom.ParseString(page, pageURL, dom.WithLogger(logger))
	require.NoError(t, err)

	f := &fixture{
		doc:   doc,
		mem:   store.NewMemory(),
		clock: &clock{t: time.Date(2025, 3, 7, 8, 0, 0, 0, time.Local)},
		notes: notify.NewRecorder(),
	}
	f.store = &countingStore{Store: f.mem}
	if configured {
		require.NoError(t, store.SetJSON(context.Background(), f.mem, schemas.KeyButtonConfig, buttonConfig))
	}
	f.ledger = timeclock.NewLedger(f.mem, timeclock.WithClock(f.clock.now))

	base := []Option{
		WithLogger(logger),
		WithClock(f.clock.now),
		WithNotifier(f.notes),
		WithMutationDebounce(20 * time.Millisecond),
	}
	f.watcher = New(doc, f.store, f.ledger, append(base, opts...)...)
	t.Cleanup(f.watcher.Stop)
	return f
}

func (f *fixture) button(t *testing.T) *html.Node {
	t.Helper()
	btn := f.doc.ByID("clock-in")
	require.NotNil(t, btn)
	return btn
}

func (f *fixture) entries(t *testing.T) []schemas.Entry {
	t.Helper()
	entries, err := f.ledger.Today(context.Background())
	require.NoError(t, err)
	return entries
}

func indicatorCount(t *testing.T, doc *dom.Document) int {
	t.Helper()
	n, err := doc.Count("." + IndicatorClass)
	require.NoError(t, err)
	return n
}

func TestWatcher_RecordsClicksWithDebounce(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.watcher.Start(context.Background()))

	btn := f.button(t)
	require.Equal(t, btn, f.watcher.Bound())
	v, ok := f.doc.Attr(btn, MarkerAttr)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
	assert.Equal(t, 1, indicatorCount(t, f.doc))
	assert.Equal(t, 1, f.doc.ListenerCount(btn, dom.EventClick))

	f.doc.Click(btn)
	require.Len(t, f.entries(t), 1)
	assert.Equal(t, schemas.SourceAuto, f.entries(t)[0].Source)

	f.clock.advance(200 * time.Millisecond)
	f.doc.Click(btn)
	assert.Len(t, f.entries(t), 1, "a click inside the debounce window is ignored")

	f.clock.advance(time.Second)
	f.doc.Click(btn)
	assert.Len(t, f.entries(t), 2)

	sent := f.notes.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Entry recorded", sent[1].Title)
	assert.Equal(t, "Entry 2 recorded at 08:00:01", sent[1].Message)
	assert.Equal(t, schemas.PriorityLow, sent[1].Priority)
}

func TestWatcher_ClickOnIndicatorCounts(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.watcher.Start(context.Background()))

	ind, err := f.doc.Query("." + IndicatorClass)
	require.NoError(t, err)
	require.NotNil(t, ind)
	f.doc.Click(ind)
	assert.Len(t, f.entries(t), 1, "clicks inside the button bubble to its listener")
}

func TestWatcher_RebindsReplacedButton(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.watcher.Start(context.Background()))
	old := f.button(t)

	fresh := dom.CreateElement("button", dom.A("id", "clock-in"))
	fresh.AppendChild(dom.CreateText("Clock In"))
	require.NoError(t, f.doc.ReplaceChild(f.doc.ByID("toolbar"), fresh, old))

	require.Eventually(t, func() bool { return f.watcher.Bound() == fresh }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.doc.ListenerCount(fresh, dom.EventClick))
	assert.Equal(t, 0, f.doc.ListenerCount(old, dom.EventClick))
	assert.True(t, f.doc.HasAttr(fresh, MarkerAttr))
	assert.Equal(t, 1, indicatorCount(t, f.doc))

	f.doc.Click(old)
	assert.Empty(t, f.entries(t), "the detached button no longer records")
	f.doc.Click(fresh)
	assert.Len(t, f.entries(t), 1)
}

func TestWatcher_RebindsAfterBodySnapshot(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.watcher.Start(context.Background()))
	old := f.button(t)

	snap, err := dom.ParseString(page, pageURL)
	require.NoError(t, err)
	require.NoError(t, f.doc.ReplaceBody(snap.Body()))

	require.Eventually(t, func() bool {
		b := f.watcher.Bound()
		return b != nil && b != old
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.doc.ListenerCount(f.button(t), dom.EventClick))
}

func TestWatcher_MutationBurstResolvesOnce(t *testing.T) {
	f := newFixture(t, true, WithMutationDebounce(80*time.Millisecond))
	require.NoError(t, f.watcher.Start(context.Background()))
	require.EqualValues(t, 1, f.store.reads.Load())

	feed := f.doc.ByID("feed")
	for i := 0; i < 20; i++ {
		require.NoError(t, f.doc.AppendChild(feed, dom.CreateElement("li")))
	}

	require.Eventually(t, func() bool { return f.store.reads.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.EqualValues(t, 2, f.store.reads.Load())
}

func TestWatcher_BatchLimitFlushesEarly(t *testing.T) {
	f := newFixture(t, true, WithMutationDebounce(time.Hour), WithBatchLimits(5, time.Hour))
	require.NoError(t, f.watcher.Start(context.Background()))

	feed := f.doc.ByID("feed")
	for i := 0; i < 4; i++ {
		require.NoError(t, f.doc.AppendChild(feed, dom.CreateElement("li")))
	}
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, f.store.reads.Load())

	require.NoError(t, f.doc.AppendChild(feed, dom.CreateElement("li")))
	require.Eventually(t, func() bool { return f.store.reads.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_IndicatorChangesDoNotTriggerResolution(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.watcher.Start(context.Background()))

	ind, err := f.doc.Query("." + IndicatorClass)
	require.NoError(t, err)
	f.doc.Remove(ind)
	time.Sleep(80 * time.Millisecond)
	assert.EqualValues(t, 1, f.store.reads.Load())
	assert.Equal(t, 0, indicatorCount(t, f.doc))

	require.NoError(t, f.watcher.Refresh(context.Background()))
	assert.Equal(t, 1, indicatorCount(t, f.doc), "refresh restores the indicator")
	assert.Equal(t, 1, f.doc.ListenerCount(f.button(t), dom.EventClick), "no duplicate listener")
}

func TestPageMatches(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		path   string
		want   bool
	}{
		{"same page", "https://portal.example.com", "/ponto", true},
		{"sub-route", "https://portal.example.com", "/ponto/home", true},
		{"other path", "https://portal.example.com", "/rh", false},
		{"other origin", "https://evil.example.com", "/ponto", false},
		{"scheme differs", "http://portal.example.com", "/ponto", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageMatches(buttonConfig, tt.origin, tt.path))
		})
	}
}

func TestWatcher_PageMismatch(t *testing.T) {
	f := newFixture(t, false)
	cfg := buttonConfig
	cfg.PagePath = "/rh"
	require.NoError(t, store.SetJSON(context.Background(), f.mem, schemas.KeyButtonConfig, cfg))

	require.NoError(t, f.watcher.Start(context.Background()))
	assert.Nil(t, f.watcher.Bound())
	assert.False(t, f.doc.HasAttr(f.button(t), MarkerAttr))
	assert.Equal(t, 0, indicatorCount(t, f.doc))
}

func TestWatcher_NoConfiguration(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.watcher.Start(context.Background()))
	assert.True(t, f.watcher.Running())
	assert.Nil(t, f.watcher.Bound())

	// Configuring later is picked up on the next resolution.
	require.NoError(t, store.SetJSON(context.Background(), f.mem, schemas.KeyButtonConfig, buttonConfig))
	require.NoError(t, f.watcher.Refresh(context.Background()))
	assert.Equal(t, f.button(t), f.watcher.Bound())
}

func TestWatcher_ButtonAppearsLater(t *testing.T) {
	f := newFixture(t, true)
	toolbar := f.doc.ByID("toolbar")
	f.doc.Remove(f.button(t))
	require.NoError(t, f.watcher.Start(context.Background()))
	assert.Nil(t, f.watcher.Bound())

	btn := dom.CreateElement("button", dom.A("id", "clock-in"))
	require.NoError(t, f.doc.AppendChild(toolbar, btn))
	require.Eventually(t, func() bool { return f.watcher.Bound() == btn }, time.Second, 5*time.Millisecond)
}

func TestWatcher_InvalidSelectorSurfaces(t *testing.T) {
	f := newFixture(t, false)
	cfg := buttonConfig
	cfg.Selector = "div[["
	require.NoError(t, store.SetJSON(context.Background(), f.mem, schemas.KeyButtonConfig, cfg))

	err := f.watcher.Start(context.Background())
	assert.ErrorContains(t, err, "configured selector is unusable")
	assert.True(t, f.watcher.Running(), "a bad selector does not stop the watcher")
}

func assertReleased(t *testing.T, f *fixture, btn *html.Node) {
	t.Helper()
	assert.False(t, f.watcher.Running())
	assert.Nil(t, f.watcher.Bound())
	assert.False(t, f.doc.HasAttr(btn, MarkerAttr))
	assert.Equal(t, 0, f.doc.ListenerCount(btn, dom.EventClick))
	assert.Equal(t, 0, indicatorCount(t, f.doc))
}

func TestWatcher_HostInvalidationTearsDown(t *testing.T) {
	rt := hostctx.New()
	f := newFixture(t, true)
	f.watcher = New(f.doc, store.Guard(f.store, rt), f.ledger,
		WithLogger(zaptest.NewLogger(t)), WithClock(f.clock.now), WithMutationDebounce(20*time.Millisecond))
	t.Cleanup(f.watcher.Stop)

	require.NoError(t, f.watcher.Start(context.Background()))
	btn := f.button(t)
	require.Equal(t, btn, f.watcher.Bound())

	rt.Invalidate()
	assertReleased(t, f, btn)

	f.doc.Click(btn)
	assert.Empty(t, f.entries(t))
	assert.ErrorIs(t, f.watcher.Start(context.Background()), hostctx.ErrContextInvalidated)
}

// flagProbe goes invalid without notifying anyone.
type flagProbe struct{ dead atomic.Bool }

func (p *flagProbe) Check() error {
	if p.dead.Load() {
		return hostctx.ErrContextInvalidated
	}
	return nil
}

func TestWatcher_InvalidationNoticedDuringResolution(t *testing.T) {
	probe := &flagProbe{}
	f := newFixture(t, true, WithProbe(probe))
	require.NoError(t, f.watcher.Start(context.Background()))
	btn := f.button(t)

	probe.dead.Store(true)
	err := f.watcher.Refresh(context.Background())
	assert.ErrorIs(t, err, hostctx.ErrContextInvalidated)
	assertReleased(t, f, btn)
}

func TestWatcher_StopIsIdempotentAndQuiet(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.watcher.Start(context.Background()))
	btn := f.button(t)

	f.watcher.Stop()
	f.watcher.Stop()
	assertReleased(t, f, btn)

	require.NoError(t, f.doc.AppendChild(f.doc.ByID("feed"), dom.CreateElement("li")))
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, f.store.reads.Load(), "no resolution after Stop")
	assert.NoError(t, f.watcher.Refresh(context.Background()))
}

func TestWatcher_UpdatesAlarmAfterRecording(t *testing.T) {
	alarm := new(mocks.MockAlarmUpdater)
	alarm.On("UpdateAlarm", mock.Anything).Return(errors.New("scheduler stopped")).Once()

	f := newFixture(t, true, WithAlarm(alarm))
	require.NoError(t, f.watcher.Start(context.Background()))
	f.doc.Click(f.button(t))

	alarm.AssertExpectations(t)
	assert.Len(t, f.entries(t), 1)
	assert.Equal(t, 1, f.notes.Len(), "an alarm failure still confirms the entry")
}

func TestWatcher_RecordFailureNotifies(t *testing.T) {
	f := newFixture(t, true)
	recorder := new(mocks.MockEntryRecorder)
	recorder.On("Record", mock.Anything, f.clock.now(), schemas.SourceAuto).Return(nil, errors.New("disk full"))
	notifier := new(mocks.MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return("id-1", nil)

	w := New(f.doc, f.mem, recorder, WithLogger(zaptest.NewLogger(t)), WithClock(f.clock.now), WithNotifier(notifier))
	t.Cleanup(w.Stop)
	require.NoError(t, w.Start(context.Background()))
	f.doc.Click(f.button(t))

	recorder.AssertExpectations(t)
	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Message, "disk full")
}

func TestWithConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Watcher()
	cfg.Notify = false
	cfg.ClickDebounce = 0

	f := newFixture(t, true, WithConfig(cfg))
	assert.Equal(t, config.NewDefaultConfig().Watcher().MutationDebounce, f.watcher.mutationDebounce)
	require.NoError(t, f.watcher.Start(context.Background()))

	btn := f.button(t)
	f.doc.Click(btn)
	f.doc.Click(btn)
	assert.Len(t, f.entries(t), 2, "a zero click debounce records every click")
	assert.Equal(t, 0, f.notes.Len(), "notifications disabled")
}

func TestWatcher_InvalidationDuringClickSkipsWrite(t *testing.T) {
	probe := &flagProbe{}
	f := newFixture(t, true)
	guarded := store.Guard(f.mem, probe)
	ledger := timeclock.NewLedger(guarded, timeclock.WithClock(f.clock.now))
	f.watcher = New(f.doc, guarded, ledger,
		WithLogger(zaptest.NewLogger(t)), WithClock(f.clock.now), WithNotifier(f.notes), WithMutationDebounce(time.Hour))
	t.Cleanup(f.watcher.Stop)

	require.NoError(t, f.watcher.Start(context.Background()))
	btn := f.button(t)
	require.Equal(t, btn, f.watcher.Bound())

	// The host goes away without anyone being told; the click is the first to notice.
	probe.dead.Store(true)
	f.doc.Click(btn)

	assert.Empty(t, f.entries(t), "nothing reaches the store after invalidation")
	assert.Equal(t, 0, f.notes.Len())
	assertReleased(t, f, btn)
}

func TestWatcher_StopWhileBodyIsReplaced(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, true)
		require.NoError(t, f.watcher.Start(context.Background()))
		snap, err := dom.ParseString(page, pageURL)
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = f.doc.ReplaceBody(snap.Body())
		}()
		f.watcher.Stop()
		<-done
		assert.Equal(t, 0, indicatorCount(t, f.doc))
	}
}
