// Package timeclock keeps the per-day list of clock entries and the workday
// settings, and derives the exit time from them.
package timeclock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/store"
)

// Ledger reads and writes clock entries through a store.Store. Entry lists
// are read-modify-written, so a single Ledger serializes its own writers.
type Ledger struct {
	store    store.Store
	now      func() time.Time
	log      *zap.Logger
	defaults schemas.Settings

	mu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock. Tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.log = logger
		}
	}
}

// WithDefaultSettings sets the settings used until the user saves their own.
func WithDefaultSettings(s schemas.Settings) Option {
	return func(l *Ledger) {
		l.defaults = s.WithDefaults()
	}
}

// NewLedger returns a Ledger backed by s.
func NewLedger(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{store: s, now: time.Now, log: zap.NewNop(), defaults: schemas.DefaultSettings()}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.Named("ledger")
	return l
}

// Now returns the ledger's current wall-clock time.
func (l *Ledger) Now() time.Time { return l.now() }

// Entries returns the entries recorded on the calendar day of day, oldest first.
// A day without entries yields an empty slice.
func (l *Ledger) Entries(ctx context.Context, day time.Time) ([]schemas.Entry, error) {
	var entries []schemas.Entry
	err := store.GetJSON(ctx, l.store, schemas.DayKey(day), &entries)
	if errors.Is(err, store.ErrNotFound) {
		return []schemas.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []schemas.Entry{}
	}
	return entries, nil
}

// Today returns today's entries.
func (l *Ledger) Today(ctx context.Context) ([]schemas.Entry, error) {
	return l.Entries(ctx, l.now())
}

// Record appends an entry at the given instant to the list of its day and
// returns the updated list. Entries stay ordered by timestamp.
func (l *Ledger) Record(ctx context.Context, at time.Time, source schemas.EntrySource) ([]schemas.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.Entries(ctx, at)
	if err != nil {
		return nil, err
	}
	entries = append(entries, schemas.Entry{Timestamp: at.UnixMilli(), Source: source})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })

	if err := store.SetJSON(ctx, l.store, schemas.DayKey(at), entries); err != nil {
		return nil, err
	}
	l.log.Info("Entry recorded.",
		zap.Time("at", at),
		zap.String("source", string(source)),
		zap.Int("entries_today", len(entries)))
	return entries, nil
}

// AddManual records a manual entry for today at the given "HH:MM" clock time.
func (l *Ledger) AddManual(ctx context.Context, clock string) (schemas.Entry, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return schemas.Entry{}, err
	}
	now := l.now()
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if _, err := l.Record(ctx, at, schemas.SourceManual); err != nil {
		return schemas.Entry{}, err
	}
	return schemas.Entry{Timestamp: at.UnixMilli(), Source: schemas.SourceManual}, nil
}

// Remove deletes every entry of today whose timestamp equals ts (Unix ms) and
// returns the remaining entries.
func (l *Ledger) Remove(ctx context.Context, ts int64) ([]schemas.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entries, err := l.Entries(ctx, now)
	if err != nil {
		return nil, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp != ts {
			kept = append(kept, e)
		}
	}
	if err := store.SetJSON(ctx, l.store, schemas.DayKey(now), kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// ClearToday empties today's entry list.
func (l *Ledger) ClearToday(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.SetJSON(ctx, l.store, schemas.DayKey(l.now()), []schemas.Entry{})
}

// Settings returns the saved workday settings, falling back to the defaults.
func (l *Ledger) Settings(ctx context.Context) (schemas.Settings, error) {
	var s schemas.Settings
	err := store.GetJSON(ctx, l.store, schemas.KeySettings, &s)
	if errors.Is(err, store.ErrNotFound) {
		return l.defaults, nil
	}
	if err != nil {
		return schemas.Settings{}, err
	}
	return s.WithDefaults(), nil
}

// SaveSettings persists s.
func (l *Ledger) SaveSettings(ctx context.Context, s schemas.Settings) error {
	if s.WorkHours < 0 || s.WorkHours > 24 {
		return fmt.Errorf("work hours must be between 0 and 24, got %v", s.WorkHours)
	}
	if s.BreakMinutes < 0 {
		return fmt.Errorf("break minutes must not be negative, got %d", s.BreakMinutes)
	}
	return store.SetJSON(ctx, l.store, schemas.KeySettings, s)
}

// ParseClock parses a 24-hour "HH:MM" clock time.
func ParseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || len(m) != 2 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
