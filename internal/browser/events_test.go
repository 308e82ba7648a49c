package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/config"
	"github.com/xkilldash9x/punchclock/internal/picker"
	"github.com/xkilldash9x/punchclock/internal/store"
	"github.com/xkilldash9x/punchclock/internal/timeclock"
	"github.com/xkilldash9x/punchclock/internal/watcher"
)

const buttonPath = "/html[1]/body[1]/div[1]/button[1]"

var buttonConfig = schemas.TargetElementConfig{
	Selector:   "#clock-in",
	PageOrigin: "https://portal.example.com",
	PagePath:   "/ponto",
	CapturedAt: time.Date(2025, 3, 7, 7, 55, 0, 0, time.UTC),
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Event
		wantErr bool
	}{
		{"click", `{"type":"click","path":"/html[1]/body[1]"}`, Event{Type: EventClick, Path: "/html[1]/body[1]"}, false},
		{"untyped click", `{"path":"/html[1]"}`, Event{Type: EventClick, Path: "/html[1]"}, false},
		{"escape", `{"type":"keydown","key":"Escape"}`, Event{Type: EventKeyDown, Key: "Escape"}, false},
		{"click without path", `{"type":"click"}`, Event{}, true},
		{"keydown without key", `{"type":"keydown"}`, Event{}, true},
		{"unknown type", `{"type":"scroll"}`, Event{}, true},
		{"not json", `click`, Event{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeEvent(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageHookJS(t *testing.T) {
	assert.Contains(t, pageHookJS, "window."+bindingName+"(JSON.stringify(ev))")
	assert.Contains(t, pageHookJS, "e.stopImmediatePropagation()")
	assert.Contains(t, pageHookJS, "'#"+LiveBannerID+"'")
	assert.NotContains(t, pageHookJS, "%!", "every format verb is filled")
}

// watchedMirror wires a watcher to a bridged mirror the way the watch command does.
func watchedMirror(t *testing.T, page *fakePage) (*Bridge, *timeclock.Ledger) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, store.SetJSON(ctx, mem, schemas.KeyButtonConfig, buttonConfig))
	ledger := timeclock.NewLedger(mem)

	logger := zaptest.NewLogger(t)
	doc, snap, err := Mirror(ctx, page)
	require.NoError(t, err)
	// A long debounce leaves rebinding to the bridge hook.
	w := watcher.New(doc, mem, ledger, watcher.WithLogger(logger), watcher.WithMutationDebounce(time.Hour))
	require.NoError(t, w.Start(ctx))
	t.Cleanup(w.Stop)

	cfg := config.NewDefaultConfig().Browser()
	b := NewBridge(page, doc, cfg, logger, WithBaseline(snap), WithAfterSync(w.Refresh))
	return b, ledger
}

func todayEntries(t *testing.T, ledger *timeclock.Ledger) []schemas.Entry {
	t.Helper()
	entries, err := ledger.Today(context.Background())
	require.NoError(t, err)
	return entries
}

func TestBridge_LiveClickRecordsEntry(t *testing.T) {
	t.Run("unchanged page", func(t *testing.T) {
		page := newFakePage(firstPage)
		b, ledger := watchedMirror(t, page)

		b.forward(context.Background(), Event{Type: EventClick, Path: buttonPath})
		assert.Len(t, todayEntries(t, ledger), 1)
	})

	t.Run("page re-rendered since the last poll", func(t *testing.T) {
		page := newFakePage(firstPage)
		b, ledger := watchedMirror(t, page)

		page.set(laterPage, portalURL)
		b.forward(context.Background(), Event{Type: EventClick, Path: buttonPath})
		entries := todayEntries(t, ledger)
		require.Len(t, entries, 1)
		assert.Equal(t, schemas.SourceAuto, entries[0].Source)
	})
}

// pickingMirror activates a picker on a bridged mirror and collects its outcomes.
func pickingMirror(t *testing.T, page *fakePage) (*Bridge, *picker.Picker, func() []picker.Outcome) {
	t.Helper()
	var (
		mu       sync.Mutex
		outcomes []picker.Outcome
	)
	b, doc := newBridge(t, page)
	p := picker.New(doc, store.NewMemory(), picker.WithLogger(zaptest.NewLogger(t)), picker.OnOutcome(func(o picker.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, o)
	}))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
	return b, p, func() []picker.Outcome {
		mu.Lock()
		defer mu.Unlock()
		return append([]picker.Outcome(nil), outcomes...)
	}
}

func TestBridge_EscapeCancelsPicker(t *testing.T) {
	b, p, outcomes := pickingMirror(t, newFakePage(firstPage))

	b.forward(context.Background(), Event{Type: EventKeyDown, Key: "Enter"})
	assert.Equal(t, picker.StateActive, p.State(), "only Escape cancels")

	b.forward(context.Background(), Event{Type: EventKeyDown, Key: "Escape"})
	require.Eventually(t, func() bool { return len(outcomes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, outcomes()[0].Err, picker.ErrCancelled)
	assert.Equal(t, picker.StateIdle, p.State())
}

func TestBridge_LiveClickPicksAfterRerender(t *testing.T) {
	page := newFakePage(firstPage)
	b, _, outcomes := pickingMirror(t, page)

	page.set(laterPage, portalURL)
	b.forward(context.Background(), Event{Type: EventClick, Path: buttonPath})
	require.Eventually(t, func() bool { return len(outcomes()) == 1 }, time.Second, 5*time.Millisecond)
	o := outcomes()[0]
	require.NoError(t, o.Err)
	assert.Equal(t, "#clock-in", o.Config.Selector)
}
