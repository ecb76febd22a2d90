package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func askCmd() *cobra.Command {
	var channel, asker string
	cmd := &cobra.Command{
		Use:   "ask <character> <question>",
		Short: "Ask a character a question and hear them answer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				res, err := engine.Ask(ctx, narrative.AskInput{
					ChannelID: channel,
					Asker:     asker,
					Character: args[0],
					Question:  strings.Join(args[1:], " "),
				})
				reportDelivery(cmd, res)
				return explain(err)
			})
		},
	}
	channelFlag(cmd, &channel)
	cmd.Flags().StringVarP(&asker, "asker", "a", "", "Player asking the question")
	_ = cmd.MarkFlagRequired("asker")
	return cmd
}
