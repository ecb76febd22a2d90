package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func forkCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "fork <parent-channel>",
		Short: "Make a channel a timeline branching from another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				if err := engine.Fork(ctx, channel, args[0]); err != nil {
					return explain(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now continues from %s.\n", channel, args[0])
				return nil
			})
		},
	}
	channelFlag(cmd, &channel)
	return cmd
}
