// File: cmd/settings.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/timeclock"
)

func newSettingsCmd() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the workday settings",
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current workday settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				s, err := c.ledger.Settings(ctx)
				if err != nil {
					return err
				}
				printSettings(cmd.OutOrStdout(), s)
				return nil
			})
		},
	})

	var hours float64
	var breakMinutes int
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change the work hours and/or the break length",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("hours") && !cmd.Flags().Changed("break") {
				return fmt.Errorf("nothing to change; pass --hours and/or --break")
			}
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				s, err := c.ledger.Settings(ctx)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("hours") {
					s.WorkHours = hours
				}
				if cmd.Flags().Changed("break") {
					s.BreakMinutes = breakMinutes
				}
				if err := c.ledger.SaveSettings(ctx, s); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Settings saved.")
				printSettings(cmd.OutOrStdout(), s.WithDefaults())
				// A different workday moves today's exit time.
				return c.alarm.UpdateAlarm(ctx)
			})
		},
	}
	setCmd.Flags().Float64Var(&hours, "hours", schemas.DefaultWorkHours, "hours of work per day")
	setCmd.Flags().IntVar(&breakMinutes, "break", schemas.DefaultBreakMinutes, "break length in minutes")
	settingsCmd.AddCommand(setCmd)

	return settingsCmd
}

func printSettings(out io.Writer, s schemas.Settings) {
	fmt.Fprintf(out, "Work hours:    %g\n", s.WorkHours)
	fmt.Fprintf(out, "Break minutes: %d\n", s.BreakMinutes)
	fmt.Fprintf(out, "Workday span:  %s\n", formatWorkday(timeclock.Workday(s)))
}
