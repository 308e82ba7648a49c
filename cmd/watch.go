// File: cmd/watch.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/punchclock/internal/browser"
	"github.com/xkilldash9x/punchclock/internal/dom"
	"github.com/xkilldash9x/punchclock/internal/hostctx"
	"github.com/xkilldash9x/punchclock/internal/watcher"
)

// errBrowserClosed ends a watch session whose browser window was closed.
var errBrowserClosed = errors.New("browser closed; reopen punchclock watch to resume")

func newWatchCmd() *cobra.Command {
	var page pageFlags
	var headless bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Record an entry every time the saved button is clicked and run the exit alarm",
		Long: `watch opens the time clock page, keeps a listener on the saved button while
the page re-renders, records an entry for every click and warns you before
your exit time. It runs until interrupted or until the browser window closes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				return runWatch(ctx, cmd, c, &page, headless)
			})
		},
	}
	page.register(cmd)
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, c *components, page *pageFlags, headless bool) error {
	host := hostctx.New()
	var (
		doc  *dom.Document
		live *livePage
		err  error
	)
	if page.live() {
		bcfg := c.cfg.Browser()
		bcfg.Headless = headless
		if live, err = page.openLive(ctx, bcfg, c.logger); err != nil {
			return err
		}
		defer live.chrome.Close()
		doc = live.doc
	} else {
		if doc, err = page.loadFile(c.logger); err != nil {
			return err
		}
	}

	// Every write of the session goes through the liveness check.
	guarded := c.guard(host)

	if err := c.alarm.Start(ctx); err != nil {
		return fmt.Errorf("failed to start the exit alarm: %w", err)
	}

	w := watcher.New(doc, guarded, c.ledger,
		watcher.WithLogger(c.logger),
		watcher.WithConfig(c.cfg.Watcher()),
		watcher.WithAlarm(c.alarm),
		watcher.WithNotifier(c.notifier))

	g, gctx := errgroup.WithContext(ctx)
	if err := w.Start(gctx); err != nil && !errors.Is(err, hostctx.ErrContextInvalidated) {
		c.logger.Warn("Initial button resolution failed.", zap.Error(err))
	}
	defer w.Stop()

	if live != nil {
		// A click right after a re-render must find the button already rebound.
		bridge := live.bridge(c.cfg.Browser(), c.logger, browser.WithAfterSync(w.Refresh))
		g.Go(func() error { return bridge.Run(gctx) })
		g.Go(func() error {
			select {
			case <-live.chrome.Done():
				host.Invalidate()
				return errBrowserClosed
			case <-gctx.Done():
				return nil
			}
		})
	}
	g.Go(func() error {
		// Wait only returns once the session is over.
		_ = c.scheduler.Wait(gctx)
		return nil
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s. Press Ctrl+C to stop.\n", doc.URL())
	err = g.Wait()
	if errors.Is(err, errBrowserClosed) {
		fmt.Fprintln(cmd.OutOrStdout(), err.Error())
		return nil
	}
	return err
}
