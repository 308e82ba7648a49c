// File: cmd/button.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/store"
)

func newButtonCmd() *cobra.Command {
	buttonCmd := &cobra.Command{
		Use:   "button",
		Short: "Inspect or forget the configured time clock button",
	}

	buttonCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved button configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				var cfg schemas.TargetElementConfig
				err := store.GetJSON(ctx, c.store, schemas.KeyButtonConfig, &cfg)
				if errors.Is(err, store.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "No button configured. Run 'punchclock pick' first.")
					return nil
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Selector:    %s\n", cfg.Selector)
				fmt.Fprintf(out, "Page:        %s%s\n", cfg.PageOrigin, cfg.PagePath)
				if cfg.PageTitle != "" {
					fmt.Fprintf(out, "Title:       %s\n", cfg.PageTitle)
				}
				fmt.Fprintf(out, "Captured at: %s\n", cfg.CapturedAt.Local().Format(time.RFC3339))
				return nil
			})
		},
	})

	buttonCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the saved button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				if err := c.store.Remove(ctx, schemas.KeyButtonConfig); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Button configuration removed.")
				return nil
			})
		},
	})

	return buttonCmd
}
