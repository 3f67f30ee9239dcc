package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/0xmhha/folder-search/pkg/display"
	"github.com/0xmhha/folder-search/pkg/query"
)

// newSearchCommand creates the search command.
func newSearchCommand(a *app) *cobra.Command {
	var (
		contains   bool
		maxResults int
		silent     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search directory names",
		Long: `Search matches the query against directory names in every enabled root.

Prefix mode (the default) matches names that start with the query, or that
have a word starting with it. Contains mode matches anywhere in the name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c, cfg, err := a.open(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()

			f, err := a.formatter(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			mode, err := query.ParseMode(cfg.Search.DefaultMode)
			if err != nil {
				return err
			}
			if contains {
				mode = query.ModeContains
			}
			if maxResults <= 0 {
				maxResults = cfg.Search.MaxResults
			}

			q := query.New(strings.Join(args, " "), mode, maxResults)
			q.Silent = silent

			s := c.Search(ctx, q)
			context.AfterFunc(ctx, c.CancelSearch)

			report := display.SearchReport{Query: s.Query}
			status := newProgress(cmd.ErrOrStderr())
			for ev := range s.Events() {
				if ev.IsFinal() {
					report.Final = ev.Final
					continue
				}
				report.Results = append(report.Results, ev.Partial...)
				status.printf("%s results...", humanize.Comma(int64(len(report.Results))))
			}
			status.clear()

			if report.Final == nil {
				return errInterrupted
			}
			return f.FormatResults(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().BoolVarP(&contains, "contains", "c", false, "match anywhere in the name")
	cmd.Flags().IntVarP(&maxResults, "max", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().BoolVar(&silent, "silent", false, "do not record the search in history")

	return cmd
}
