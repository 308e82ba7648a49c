// File: cmd/pick.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/punchclock/internal/dom"
	"github.com/xkilldash9x/punchclock/internal/picker"
)

func newPickCmd() *cobra.Command {
	var page pageFlags
	var target targetFlags

	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Choose the time clock button and save it",
		Long: `pick selects the button you press to clock in and out and saves a selector
for it. Without --file a browser window opens on --url; click the button there,
or press Escape to cancel. With --selector or --xpath the element is picked
without interaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *components) error {
				var (
					o   picker.Outcome
					err error
				)
				if page.live() {
					o, err = pickLive(ctx, c, &page, &target)
				} else {
					o, err = pickFromFile(ctx, c, &page, &target)
				}
				if err != nil {
					return err
				}
				return reportOutcome(cmd.OutOrStdout(), o)
			})
		},
	}
	page.register(cmd)
	target.register(cmd)
	return cmd
}

// pickScripted activates the picker on doc, hovers and clicks el, and returns the outcome.
func pickScripted(ctx context.Context, p *picker.Picker, doc *dom.Document, target *targetFlags, outcomes <-chan picker.Outcome) (picker.Outcome, error) {
	el, err := target.resolve(doc)
	if err != nil {
		return picker.Outcome{}, err
	}
	if err := p.Start(ctx); err != nil {
		return picker.Outcome{}, err
	}
	doc.Hover(nil, el)
	doc.Click(el)
	select {
	case o := <-outcomes:
		return o, nil
	case <-ctx.Done():
		p.Stop()
		return picker.Outcome{}, ctx.Err()
	}
}

func pickFromFile(ctx context.Context, c *components, page *pageFlags, target *targetFlags) (picker.Outcome, error) {
	doc, err := page.loadFile(c.logger)
	if err != nil {
		return picker.Outcome{}, err
	}
	outcomes := make(chan picker.Outcome, 1)
	p := picker.New(doc, c.store, picker.WithLogger(c.logger), picker.OnOutcome(func(o picker.Outcome) {
		select {
		case outcomes <- o:
		default:
		}
	}))
	return pickScripted(ctx, p, doc, target, outcomes)
}

func pickLive(ctx context.Context, c *components, page *pageFlags, target *targetFlags) (picker.Outcome, error) {
	bcfg := c.cfg.Browser()
	if !target.set() {
		// The user has to see the page to click the button.
		bcfg.Headless = false
	}
	live, err := page.openLive(ctx, bcfg, c.logger)
	if err != nil {
		return picker.Outcome{}, err
	}
	defer live.chrome.Close()

	if target.set() {
		outcomes := make(chan picker.Outcome, 1)
		p := picker.New(live.doc, c.store, picker.WithLogger(c.logger), picker.OnOutcome(func(o picker.Outcome) {
			select {
			case outcomes <- o:
			default:
			}
		}))
		return pickScripted(ctx, p, live.doc, target, outcomes)
	}

	// Pick mode keeps the click from reaching the page's own handlers.
	if err := live.chrome.SetPicking(ctx, true); err != nil {
		return picker.Outcome{}, err
	}
	bridge := live.bridge(bcfg, c.logger)
	p := picker.New(live.doc, c.store, picker.WithLogger(c.logger))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return bridge.Run(gctx) })

	c.logger.Info("Click the time clock button in the browser window.", zap.String("url", page.url))
	o, err := p.Pick(gctx)
	if serr := live.chrome.SetPicking(context.WithoutCancel(ctx), false); serr != nil {
		c.logger.Debug("Failed to leave pick mode.", zap.Error(serr))
	}
	cancel()
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return o, err
}

func reportOutcome(out io.Writer, o picker.Outcome) error {
	if errors.Is(o.Err, picker.ErrCancelled) {
		fmt.Fprintln(out, "Picking cancelled; nothing saved.")
		return nil
	}
	if o.Err != nil {
		return o.Err
	}
	fmt.Fprintf(out, "Saved button selector: %s (%s)\n", o.Config.Selector, o.Strategy)
	fmt.Fprintf(out, "Page: %s%s\n", o.Config.PageOrigin, o.Config.PagePath)
	return nil
}
