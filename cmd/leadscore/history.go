package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/rushteam/leadscore/history"
)

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent predictions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			hist, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			if hist == nil {
				return errors.New("history is disabled, set history.enabled to true")
			}
			defer func() { _ = hist.Close() }()

			entries, err := hist.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "number of entries to show")
	return cmd
}
