package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
	"crowdedhouse/internal/store"
)

func charactersCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "characters",
		Short: "List the characters visible in a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				characters, err := engine.Characters(ctx, channel)
				if err != nil {
					return explain(err)
				}
				if len(characters) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No characters found.")
					return nil
				}
				return printCharacters(cmd.OutOrStdout(), channel, characters)
			})
		},
	}
	channelFlag(cmd, &channel)
	return cmd
}

func printCharacters(out io.Writer, channel string, characters []store.Character) error {
	for _, c := range characters {
		kind := "player"
		if c.IsNPC {
			kind = "npc"
		}
		location := ""
		if c.ChannelID != channel {
			location = fmt.Sprintf(" (from %s)", c.ChannelID)
		}
		fmt.Fprintf(out, "%s [%s]%s\n", c.Name, kind, location)
		if c.State.IsZero() {
			continue
		}
		state, err := json.Marshal(c.State)
		if err != nil {
			return fmt.Errorf("encoding state of %q: %w", c.Name, err)
		}
		fmt.Fprintf(out, "  %s\n", state)
	}
	return nil
}
