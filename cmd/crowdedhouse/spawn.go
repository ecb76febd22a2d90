package main

import (
	"context"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func spawnCmd() *cobra.Command {
	var channel, traits, backstory string
	cmd := &cobra.Command{
		Use:   "spawn <name>",
		Short: "Bring a named non-player character into the story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				res, err := engine.Spawn(ctx, narrative.SpawnInput{
					ChannelID: channel,
					Name:      args[0],
					Traits:    traits,
					Backstory: backstory,
				})
				if res != nil {
					reportDelivery(cmd, &res.Result)
				}
				return explain(err)
			})
		},
	}
	channelFlag(cmd, &channel)
	cmd.Flags().StringVar(&traits, "traits", "", "Personality traits")
	cmd.Flags().StringVar(&backstory, "backstory", "", "Character backstory")
	return cmd
}
