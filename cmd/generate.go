// File: cmd/generate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/punchclock/internal/observability"
	"github.com/xkilldash9x/punchclock/internal/selector"
)

func newGenerateCmd() *cobra.Command {
	var page pageFlags
	var target targetFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print the selector punchclock would save for an element of a saved page",
		Long: `generate runs selector synthesis and validation on one element of a saved
HTML page without touching the store. Use it to check how stable the selector
for your portal's button will be.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if page.live() {
				return fmt.Errorf("generate works on saved pages; pass --file")
			}
			doc, err := page.loadFile(observability.GetLogger())
			if err != nil {
				return err
			}
			el, err := target.resolve(doc)
			if err != nil {
				return err
			}

			cand, err := selector.Synthesize(doc, el)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Selector: %s\n", cand.Selector)
			fmt.Fprintf(out, "Strategy: %s\n", cand.Strategy)
			fmt.Fprintf(out, "XPath:    %s\n", doc.XPath(el))
			if err := selector.Check(doc, cand.Selector, el); err != nil {
				fmt.Fprintf(out, "Valid:    no (%v)\n", err)
				return nil
			}
			fmt.Fprintln(out, "Valid:    yes")
			return nil
		},
	}
	page.register(cmd)
	target.register(cmd)
	return cmd
}
