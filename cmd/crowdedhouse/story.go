package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/config"
	"crowdedhouse/internal/narrative"
)

func channelFlag(cmd *cobra.Command, channel *string) {
	cmd.Flags().StringVarP(channel, "channel", "c", "", "Channel the story is told in")
	_ = cmd.MarkFlagRequired("channel")
}

// withEngine runs fn against an engine whose story output goes to the
// command's stdout or the configured chat transport.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *narrative.Engine) error) error {
	ctx := cmd.Context()

	sender, err := newSender(projectConfig, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	engine, db, err := openEngine(ctx, projectConfig, sender)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	return fn(ctx, engine)
}

// reportDelivery summarises a remote delivery. Stdout delivery already
// printed the story.
func reportDelivery(cmd *cobra.Command, res *narrative.Result) {
	if res == nil || projectConfig.Transport.Kind != config.TransportDiscord {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d of %d fragments.\n", res.Delivered, len(res.Fragments))
}
