// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/alarm"
	"github.com/xkilldash9x/punchclock/internal/config"
	"github.com/xkilldash9x/punchclock/internal/hostctx"
	"github.com/xkilldash9x/punchclock/internal/notify"
	"github.com/xkilldash9x/punchclock/internal/observability"
	"github.com/xkilldash9x/punchclock/internal/scheduler"
	"github.com/xkilldash9x/punchclock/internal/store"
	"github.com/xkilldash9x/punchclock/internal/timeclock"
)

// components holds the long-lived services a command needs.
type components struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	ledger    *timeclock.Ledger
	scheduler *scheduler.Scheduler
	notifier  notify.Notifier
	alarm     *alarm.Manager
}

// newComponents opens the store and wires the ledger, scheduler and alarm.
// Notifications go to the log and to out.
func newComponents(ctx context.Context, out io.Writer) (*components, error) {
	cfg, err := configFrom(ctx)
	if err != nil {
		return nil, err
	}
	logger := observability.GetLogger()

	s, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	c := &components{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		scheduler: scheduler.New(logger),
	}
	alarmCfg := cfg.Alarm()
	c.notifier = notify.NewLimited(
		notify.FanOut{notify.NewLogNotifier(logger), notify.NewWriterNotifier(out)},
		rate.Every(alarmCfg.CheckInterval), alarmCfg.NotifyBurst, logger)
	c.wire(s)
	return c, nil
}

// wire builds the ledger and the alarm over s.
func (c *components) wire(s store.Store) {
	seed := c.cfg.Settings()
	c.ledger = timeclock.NewLedger(s,
		timeclock.WithLogger(c.logger),
		timeclock.WithDefaultSettings(schemas.Settings{WorkHours: seed.WorkHours, BreakMinutes: seed.BreakMinutes}))
	c.alarm = alarm.New(c.ledger, s, c.scheduler, c.notifier, c.cfg.Alarm(), alarm.WithLogger(c.logger))
}

// guard rewires the ledger and the alarm so every persistence call first
// checks probe. It must run before the alarm is started. The guarded store is
// returned for the other components of the session.
func (c *components) guard(probe hostctx.Probe) store.Store {
	c.alarm.Stop()
	guarded := store.Guard(c.store, probe)
	c.wire(guarded)
	return guarded
}

// Close stops scheduled work and releases the store.
func (c *components) Close() {
	c.alarm.Stop()
	c.scheduler.Stop()
	if err := c.store.Close(); err != nil {
		c.logger.Warn("Failed to close store.", zap.Error(err))
	}
}
