package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/0xmhha/folder-search/pkg/coordinator"
	"github.com/0xmhha/folder-search/pkg/scanner"
)

// newRebuildCommand creates the rebuild command.
func newRebuildCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [root]...",
		Short: "Crawl roots again and replace their catalogs",
		Long: `Rebuild crawls the given roots, or every enabled root when none is
given, and installs the new catalogs. A root whose scan fails or times out
keeps its previous catalog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c, _, err := a.open(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			paths := args
			if len(paths) == 0 {
				for _, r := range c.Roots() {
					if r.Enabled {
						paths = append(paths, r.Path)
					}
				}
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No roots configured")
				return nil
			}

			for _, path := range paths {
				if err := rebuildRoot(ctx, cmd, c, path); err != nil {
					return err
				}
				if ctx.Err() != nil {
					return errInterrupted
				}
			}
			return nil
		},
	}
}

// rebuildRoot rebuilds one root and reports its outcome.
func rebuildRoot(ctx context.Context, cmd *cobra.Command, c *coordinator.Coordinator, path string) error {
	events, err := c.Rebuild(ctx, path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	status := newProgress(cmd.ErrOrStderr())
	for ev := range events {
		switch ev.Kind {
		case scanner.EventProgress:
			status.printf("%s: %s directories (%.0f/s)",
				ev.Root, humanize.Comma(int64(ev.Progress.Processed)), ev.Progress.Rate)

		case scanner.EventFinished:
			status.clear()
			line := fmt.Sprintf("%s: %s directories in %s", ev.Root,
				humanize.Comma(int64(ev.Total)), ev.Elapsed.Round(time.Millisecond))
			if ev.Inaccessible > 0 {
				line += fmt.Sprintf(", %s inaccessible", humanize.Comma(int64(ev.Inaccessible)))
			}
			if ev.Truncated {
				line += fmt.Sprintf(", stopped at %s", ev.StopReason)
			}
			fmt.Fprintln(out, line)

		case scanner.EventAborted:
			status.clear()
			fmt.Fprintf(out, "%s: aborted (%s), previous catalog kept\n", ev.Root, ev.AbortReason)

		case scanner.EventFailed:
			status.clear()
			fmt.Fprintf(out, "%s: failed: %v\n", ev.Root, ev.Err)
		}
	}
	return nil
}
