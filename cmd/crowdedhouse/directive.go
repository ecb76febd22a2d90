package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func directiveCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "directive <text>",
		Short: "Add to the narrator's directive for a channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				return explain(engine.SetDirective(ctx, channel, strings.Join(args, " ")))
			})
		},
	}
	channelFlag(cmd, &channel)
	return cmd
}
