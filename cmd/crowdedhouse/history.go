package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func historyCmd() *cobra.Command {
	var channel string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the story so far, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				memories, err := engine.History(ctx, channel, limit)
				if err != nil {
					return explain(err)
				}
				if len(memories) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing has happened yet.")
					return nil
				}
				for _, m := range memories {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Text)
				}
				return nil
			})
		},
	}
	channelFlag(cmd, &channel)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the most recent memories")
	return cmd
}
