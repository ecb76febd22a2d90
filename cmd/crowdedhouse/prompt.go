package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func promptCmd() *cobra.Command {
	var channel, author string
	cmd := &cobra.Command{
		Use:   "prompt <text>",
		Short: "Take a player's turn and narrate what happens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				res, err := engine.Prompt(ctx, narrative.PromptInput{
					ChannelID: channel,
					Author:    author,
					Text:      strings.Join(args, " "),
				})
				reportDelivery(cmd, res)
				return explain(err)
			})
		},
	}
	channelFlag(cmd, &channel)
	cmd.Flags().StringVarP(&author, "author", "a", "", "Player taking the turn")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}
