package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/0xmhha/folder-search/pkg/eventbus"
	"github.com/0xmhha/folder-search/pkg/filelock"
	"github.com/0xmhha/folder-search/pkg/scanner"
)

// newWatchCommand creates the watch command.
func newWatchCommand(a *app) *cobra.Command {
	var progress bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep catalogs fresh and print engine events",
		Long: `Watch loads every root, rebuilds the ones without a catalog and follows
filesystem changes until interrupted. Engine events are printed as they
happen. Patched catalogs are written back before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			kinds := eventbus.Kinds(
				eventbus.KindScanFinished,
				eventbus.KindCatalogReady,
				eventbus.KindCatalogInvalidated,
				eventbus.KindResultsStale,
				eventbus.KindWatcherUnavailable,
			)
			if progress {
				kinds |= eventbus.Kinds(eventbus.KindScanProgress)
			}

			lock, err := a.lockWatch()
			if err != nil {
				return err
			}
			defer lock.Unlock()

			c, cfg, err := a.open(ctx, true)
			if err != nil {
				return err
			}
			defer c.Close()

			if !cfg.Watch.Enabled {
				fmt.Fprintln(cmd.ErrOrStderr(), "watching is disabled in the configuration, showing scans only")
			}

			p := newEventPrinter(cmd.OutOrStdout(), cfg.Display.ColorEnabled && !a.noColor && isTerminal(cmd.OutOrStdout()))
			sub := c.Subscribe(kinds, p.print)
			defer sub.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %d roots, press Ctrl+C to stop\n", len(c.Roots()))
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&progress, "progress", false, "print scan progress events")

	return cmd
}

// lockWatch takes the watch lock in the working directory so that only one
// watcher patches the catalogs.
func (a *app) lockWatch() (*filelock.FileLock, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	lock := filelock.NewFileLock(filepath.Join(cfg.WorkDir, watchLockName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", errWatchRunning, lock.Path())
	}
	return lock, nil
}

// eventPrinter writes one line per engine event.
type eventPrinter struct {
	w    io.Writer
	good *color.Color
	bad  *color.Color
	dim  *color.Color
}

func newEventPrinter(w io.Writer, colorEnabled bool) *eventPrinter {
	p := &eventPrinter{
		w:    w,
		good: color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		dim:  color.New(color.Faint),
	}
	if !colorEnabled {
		p.good.DisableColor()
		p.bad.DisableColor()
		p.dim.DisableColor()
	}
	return p
}

// print runs on the subscription's dispatch goroutine.
func (p *eventPrinter) print(ev eventbus.Event) {
	stamp := p.dim.Sprint(ev.Time.Local().Format(time.TimeOnly))

	var msg string
	switch ev.Kind {
	case eventbus.KindScanProgress:
		msg = p.dim.Sprintf("scanned %s directories (%.0f/s)",
			humanize.Comma(int64(ev.Progress.Processed)), ev.Progress.Rate)
	case eventbus.KindScanFinished:
		if ev.Outcome == scanner.EventFinished {
			msg = p.good.Sprintf("scan finished, %s directories", humanize.Comma(int64(ev.Count)))
		} else {
			msg = p.bad.Sprintf("scan %s: %v", ev.Outcome, ev.Err)
		}
	case eventbus.KindCatalogReady:
		msg = p.good.Sprintf("catalog ready, %s directories", humanize.Comma(int64(ev.Count)))
	case eventbus.KindCatalogInvalidated:
		msg = p.bad.Sprintf("catalog invalidated: %v", ev.Err)
	case eventbus.KindResultsStale:
		msg = "directories changed"
	case eventbus.KindWatcherUnavailable:
		msg = p.bad.Sprintf("watcher unavailable, rescanning periodically: %v", ev.Err)
	default:
		msg = ev.Kind.String()
	}

	fmt.Fprintf(p.w, "%s %s %s\n", stamp, ev.Root, msg)
}
