package main

import (
	"context"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func continueCmd() *cobra.Command {
	var channel, author string
	cmd := &cobra.Command{
		Use:   "continue",
		Short: "Advance the story without a player turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				res, err := engine.Continue(ctx, channel, "", author)
				reportDelivery(cmd, res)
				return explain(err)
			})
		},
	}
	channelFlag(cmd, &channel)
	cmd.Flags().StringVarP(&author, "author", "a", "", "Player asking for more (logged only)")
	return cmd
}
