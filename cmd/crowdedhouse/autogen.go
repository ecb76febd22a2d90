package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func autogenCmd() *cobra.Command {
	var channel, author string
	cmd := &cobra.Command{
		Use:   "autogen",
		Short: "Invent non-player characters that fit the story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				res, err := engine.AutoGenerate(ctx, channel, "", author)
				if res != nil {
					reportDelivery(cmd, &res.Result)
					if len(res.Skipped) > 0 {
						fmt.Fprintf(cmd.ErrOrStderr(), "Skipped already known: %s\n", strings.Join(res.Skipped, ", "))
					}
				}
				return explain(err)
			})
		},
	}
	channelFlag(cmd, &channel)
	cmd.Flags().StringVarP(&author, "author", "a", "", "Player requesting characters")
	return cmd
}
