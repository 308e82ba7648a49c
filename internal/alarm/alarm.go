// Package alarm schedules the exit-time alarm and the reminders that lead up to it.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/config"
	"github.com/xkilldash9x/punchclock/internal/notify"
	"github.com/xkilldash9x/punchclock/internal/store"
	"github.com/xkilldash9x/punchclock/internal/timeclock"
)

// Scheduled job names.
const (
	JobExit     = "exit"
	JobPeriodic = "periodic-check"
	JobSnooze   = "reminder-5min"
	JobMidnight = "midnight-reset"
)

// ExitNotificationID identifies the exit notification so its actions can be routed back.
const ExitNotificationID = "punchclock-exit"

// Actions offered on the exit notification, by index.
const (
	ActionAcknowledge = 0
	ActionSnooze      = 1
)

// Ledger is the read side of the time clock the manager needs.
type Ledger interface {
	Today(ctx context.Context) ([]schemas.Entry, error)
	Settings(ctx context.Context) (schemas.Settings, error)
}

// Scheduler runs named callbacks. Scheduling an existing name replaces it.
type Scheduler interface {
	At(name string, when time.Time, fn func())
	Every(name string, interval time.Duration, fn func()) error
	Cron(name, spec string, fn func()) error
	Cancel(name string)
	Has(name string) bool
}

// Manager keeps the exit alarm in sync with today's entries. Every scheduled
// callback re-checks the persisted "already notified" flags, so repeated
// firings do not repeat notifications.
type Manager struct {
	ledger   Ledger
	store    store.Store
	sched    Scheduler
	notifier notify.Notifier
	cfg      config.AlarmConfig
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// New returns a Manager. It schedules nothing until Start or UpdateAlarm is called.
func New(ledger Ledger, s store.Store, sched Scheduler, notifier notify.Notifier, cfg config.AlarmConfig, opts ...Option) *Manager {
	m := &Manager{
		ledger:   ledger,
		store:    s,
		sched:    sched,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		log:      zap.NewNop(),
		runCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("alarm")
	return m
}

// Start installs the midnight rollover and the periodic check, then restores
// the exit alarm from today's entries. Callbacks run with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.mu.Unlock()

	if err := m.sched.Cron(JobMidnight, "@midnight", m.onMidnight); err != nil {
		return fmt.Errorf("failed to schedule midnight rollover: %w", err)
	}
	if err := m.ensurePeriodicCheck(); err != nil {
		return err
	}
	return m.UpdateAlarm(ctx)
}

// Stop cancels every job the manager owns. The scheduler itself stays with its owner.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	for _, name := range []string{JobExit, JobPeriodic, JobSnooze, JobMidnight} {
		m.sched.Cancel(name)
	}
	m.cancel()
	m.started = false
}

func (m *Manager) ctx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runCtx
}

func (m *Manager) ensurePeriodicCheck() error {
	if m.sched.Has(JobPeriodic) {
		return nil
	}
	if err := m.sched.Every(JobPeriodic, m.cfg.CheckInterval, m.onPeriodic); err != nil {
		return fmt.Errorf("failed to schedule periodic check: %w", err)
	}
	return nil
}

// UpdateAlarm recomputes the exit time from today's entries and reschedules.
// No entries clears the alarm; an exit time already behind us notifies at once.
func (m *Manager) UpdateAlarm(ctx context.Context) error {
	entries, err := m.ledger.Today(ctx)
	if err != nil {
		return fmt.Errorf("failed to load today's entries: %w", err)
	}
	if len(entries) == 0 {
		m.log.Debug("No entries today, clearing alarm.")
		return m.ClearAlarm(ctx)
	}
	settings, err := m.ledger.Settings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	exit, _ := timeclock.ExitTime(entries, settings)
	now := m.now()
	if !exit.After(now) {
		m.log.Info("Exit time already passed.", zap.Time("exit", exit))
		return m.notifyExitOnce(ctx)
	}

	m.sched.At(JobExit, exit, m.onExit)
	info := schemas.AlarmInfo{ExitTime: exit.UnixMilli(), Entries: len(entries), Settings: settings}
	if err := store.SetJSON(ctx, m.store, schemas.KeyAlarmInfo, info); err != nil {
		return fmt.Errorf("failed to save alarm info: %w", err)
	}
	if err := m.ensurePeriodicCheck(); err != nil {
		return err
	}
	if err := m.resetFlags(ctx); err != nil {
		return err
	}
	m.log.Info("Exit alarm scheduled.",
		zap.Time("exit", exit),
		zap.Int("minutes_left", timeclock.MinutesUntil(exit, now)))
	return nil
}

// ClearAlarm cancels the exit alarm and any pending snooze and forgets the alarm info.
func (m *Manager) ClearAlarm(ctx context.Context) error {
	m.sched.Cancel(JobExit)
	m.sched.Cancel(JobSnooze)
	if err := m.store.Remove(ctx, schemas.KeyAlarmInfo); err != nil {
		return fmt.Errorf("failed to clear alarm info: %w", err)
	}
	m.log.Debug("Alarm cleared.")
	return nil
}

// CheckUpcomingExit sends the first and final warnings and the exit
// notification when their windows are reached, each at most once.
func (m *Manager) CheckUpcomingExit(ctx context.Context) error {
	var info schemas.AlarmInfo
	err := store.GetJSON(ctx, m.store, schemas.KeyAlarmInfo, &info)
	if errors.Is(err, store.ErrNotFound) || (err == nil && info.ExitTime == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load alarm info: %w", err)
	}

	minutes := timeclock.MinutesUntil(info.Exit(), m.now())
	m.log.Debug("Checking upcoming exit.", zap.Int("minutes_left", minutes))

	if minutes >= m.cfg.WarnFirst-1 && minutes <= m.cfg.WarnFirst+1 {
		if err := m.once(ctx, schemas.KeyNotified5Min, func() error { return m.send(ctx, warning(m.cfg.WarnFirst)) }); err != nil {
			return err
		}
	}
	if minutes >= m.cfg.WarnFinal && minutes <= m.cfg.WarnFinal+1 {
		if err := m.once(ctx, schemas.KeyNotified1Min, func() error { return m.send(ctx, warning(m.cfg.WarnFinal)) }); err != nil {
			return err
		}
	}
	if minutes <= 0 {
		if err := m.notifyExitOnce(ctx); err != nil {
			return err
		}
	}
	if minutes > m.cfg.ResetAfter {
		return m.resetFlags(ctx)
	}
	return nil
}

// Snooze shows the exit notification again after the configured delay.
func (m *Manager) Snooze() time.Time {
	when := m.now().Add(m.cfg.Snooze)
	m.sched.At(JobSnooze, when, m.onSnooze)
	m.log.Info("Exit reminder snoozed.", zap.Time("until", when))
	return when
}

// HandleAction routes a button press on a notification. It reports whether
// the notification belongs to the manager.
func (m *Manager) HandleAction(notificationID string, index int) bool {
	if notificationID != ExitNotificationID {
		return false
	}
	switch index {
	case ActionAcknowledge:
		m.log.Info("Exit acknowledged.")
	case ActionSnooze:
		m.Snooze()
	default:
		m.log.Warn("Unknown notification action.", zap.Int("index", index))
	}
	return true
}

// Status is a snapshot of the alarm state.
type Status struct {
	Info         *schemas.AlarmInfo
	Notified5Min bool
	Notified1Min bool
	NotifiedExit bool
	ExitPending  bool
	Snoozed      bool
}

// Status reads the persisted alarm info and notification flags.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	var info schemas.AlarmInfo
	err := store.GetJSON(ctx, m.store, schemas.KeyAlarmInfo, &info)
	switch {
	case err == nil:
		st.Info = &info
	case !errors.Is(err, store.ErrNotFound):
		return Status{}, err
	}
	for key, dst := range map[string]*bool{
		schemas.KeyNotified5Min: &st.Notified5Min,
		schemas.KeyNotified1Min: &st.Notified1Min,
		schemas.KeyNotifiedExit: &st.NotifiedExit,
	} {
		if *dst, err = m.flag(ctx, key); err != nil {
			return Status{}, err
		}
	}
	st.ExitPending = m.sched.Has(JobExit)
	st.Snoozed = m.sched.Has(JobSnooze)
	return st, nil
}

// -- scheduled callbacks --

func (m *Manager) onExit() {
	if err := m.notifyExitOnce(m.ctx()); err != nil {
		m.log.Error("Exit alarm failed.", zap.Error(err))
	}
}

func (m *Manager) onSnooze() {
	ctx := m.ctx()
	if err := m.send(ctx, exitNotification(m.cfg.Snooze)); err != nil {
		return
	}
	if err := m.setFlag(ctx, schemas.KeyNotifiedExit, true); err != nil {
		m.log.Error("Failed to save notification flag.", zap.Error(err))
	}
}

func (m *Manager) onPeriodic() {
	if err := m.CheckUpcomingExit(m.ctx()); err != nil {
		m.log.Error("Periodic check failed.", zap.Error(err))
	}
}

func (m *Manager) onMidnight() {
	m.log.Info("New day, clearing alarm.")
	if err := m.ClearAlarm(m.ctx()); err != nil {
		m.log.Error("Midnight rollover failed.", zap.Error(err))
	}
}

// -- flags and notifications --

func (m *Manager) notifyExitOnce(ctx context.Context) error {
	return m.once(ctx, schemas.KeyNotifiedExit, func() error { return m.send(ctx, exitNotification(m.cfg.Snooze)) })
}

// once runs fn unless the flag at key is set. The flag is only set when fn
// succeeds, so an undelivered notification is retried on the next check.
func (m *Manager) once(ctx context.Context, key string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	done, err := m.flag(ctx, key)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if err := fn(); err != nil {
		return nil
	}
	return m.setFlag(ctx, key, true)
}

func (m *Manager) flag(ctx context.Context, key string) (bool, error) {
	var v bool
	err := store.GetJSON(ctx, m.store, key, &v)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return v, err
}

func (m *Manager) setFlag(ctx context.Context, key string, v bool) error {
	return store.SetJSON(ctx, m.store, key, v)
}

func (m *Manager) resetFlags(ctx context.Context) error {
	for _, key := range []string{schemas.KeyNotified5Min, schemas.KeyNotified1Min, schemas.KeyNotifiedExit} {
		if err := m.setFlag(ctx, key, false); err != nil {
			return fmt.Errorf("failed to reset %s: %w", key, err)
		}
	}
	return nil
}

func (m *Manager) send(ctx context.Context, n schemas.Notification) error {
	if _, err := m.notifier.Notify(ctx, n); err != nil {
		m.log.Warn("Notification not delivered.", zap.String("title", n.Title), zap.Error(err))
		return err
	}
	return nil
}

func exitNotification(snooze time.Duration) schemas.Notification {
	return schemas.Notification{
		ID:       ExitNotificationID,
		Title:    "Time to clock out!",
		Message:  "It's time to register your exit. Don't forget!",
		Priority: schemas.PriorityHigh,
		Sticky:   true,
		Actions: []schemas.NotificationAction{
			{Title: "Already clocked out"},
			{Title: "Remind me in " + formatDelay(snooze)},
		},
	}
}

func warning(minutes int) schemas.Notification {
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return schemas.Notification{
		Title:    "punchclock: heads up",
		Message:  fmt.Sprintf("%d %s left until your exit time.\n\nDon't forget to clock out!", minutes, unit),
		Priority: schemas.PriorityHigh,
		Sticky:   true,
	}
}

func formatDelay(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return d.String()
}
