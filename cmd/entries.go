// File: cmd/entries.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/punchclock/internal/timeclock"
)

func newEntriesCmd() *cobra.Command {
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "Show and edit today's clock entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				return printDay(ctx, cmd.OutOrStdout(), c)
			})
		},
	}

	entriesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List today's entries with the computed exit time",
		Args:  cobra.NoArgs,
		RunE:  entriesCmd.RunE,
	})

	entriesCmd.AddCommand(&cobra.Command{
		Use:   "add HH:MM",
		Short: "Add a manual entry for today",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				entry, err := c.ledger.AddManual(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added manual entry at %s.\n", timeclock.FormatClock(entry.Time()))
				if err := c.alarm.UpdateAlarm(ctx); err != nil {
					return fmt.Errorf("entry saved but the alarm was not updated: %w", err)
				}
				return printDay(ctx, cmd.OutOrStdout(), c)
			})
		},
	})

	entriesCmd.AddCommand(&cobra.Command{
		Use:   "remove N",
		Short: "Remove the Nth entry of today (as numbered by 'entries list')",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry number %q", args[0])
			}
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				entries, err := c.ledger.Today(ctx)
				if err != nil {
					return err
				}
				if n < 1 || n > len(entries) {
					return fmt.Errorf("entry %d does not exist; today has %d entries", n, len(entries))
				}
				removed := entries[n-1]
				if _, err := c.ledger.Remove(ctx, removed.Timestamp); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed entry %d (%s).\n", n, timeclock.FormatClock(removed.Time()))
				if err := c.alarm.UpdateAlarm(ctx); err != nil {
					return fmt.Errorf("entry removed but the alarm was not updated: %w", err)
				}
				return printDay(ctx, cmd.OutOrStdout(), c)
			})
		},
	})

	entriesCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all of today's entries and cancel the exit alarm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				if err := c.ledger.ClearToday(ctx); err != nil {
					return err
				}
				if err := c.alarm.ClearAlarm(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Today's entries cleared.")
				return nil
			})
		},
	})

	return entriesCmd
}

// withComponents opens the services for the duration of fn.
func withComponents(cmd *cobra.Command, fn func(ctx context.Context, c *components) error) error {
	ctx := cmd.Context()
	c, err := newComponents(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// printDay renders today's entries followed by the exit summary.
func printDay(ctx context.Context, out io.Writer, c *components) error {
	entries, err := c.ledger.Today(ctx)
	if err != nil {
		return err
	}
	settings, err := c.ledger.Settings(ctx)
	if err != nil {
		return err
	}
	now := c.ledger.Now()

	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries recorded today.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIME\tSOURCE")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, e.Time().Format("15:04:05"), e.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	exit, _ := timeclock.ExitTime(entries, settings)
	fmt.Fprintf(out, "\nExit time: %s (%s)\n", timeclock.FormatClock(exit), timeclock.TimeRemaining(exit, now))
	fmt.Fprintf(out, "Progress:  %.0f%% of a %s workday\n", timeclock.Progress(entries, settings, now), formatWorkday(timeclock.Workday(settings)))
	return nil
}

func formatWorkday(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%02d", h, m)
}
