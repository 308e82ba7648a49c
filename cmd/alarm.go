// File: cmd/alarm.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/punchclock/internal/timeclock"
)

func newAlarmCmd() *cobra.Command {
	alarmCmd := &cobra.Command{
		Use:   "alarm",
		Short: "Inspect the exit alarm",
	}

	alarmCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the scheduled exit time and which warnings were already sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				st, err := c.alarm.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if st.Info == nil {
					fmt.Fprintln(out, "No exit alarm scheduled.")
					return nil
				}
				exit := st.Info.Exit()
				fmt.Fprintf(out, "Exit time:     %s (%s)\n", exit.Format("15:04"), timeclock.TimeRemaining(exit, c.ledger.Now()))
				fmt.Fprintf(out, "Entries:       %d\n", st.Info.Entries)
				fmt.Fprintf(out, "Workday:       %s\n", formatWorkday(timeclock.Workday(st.Info.Settings)))
				fmt.Fprintf(out, "Warned early:  %t\n", st.Notified5Min)
				fmt.Fprintf(out, "Warned final:  %t\n", st.Notified1Min)
				fmt.Fprintf(out, "Exit notified: %t\n", st.NotifiedExit)
				return nil
			})
		},
	})

	alarmCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run one upcoming-exit check now, sending any due warning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				if err := c.alarm.CheckUpcomingExit(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checked at %s.\n", c.ledger.Now().Format(time.Kitchen))
				return nil
			})
		},
	})

	return alarmCmd
}
