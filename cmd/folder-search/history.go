package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newHistoryCommand creates the history command.
func newHistoryCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, cfg, err := a.openHistory()
			if err != nil {
				return err
			}

			records, err := h.List()
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			f, err := a.formatter(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return f.FormatHistory(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show, 0 for all")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the search history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, _, err := a.openHistory()
			if err != nil {
				return err
			}
			if err := h.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	})

	return cmd
}
