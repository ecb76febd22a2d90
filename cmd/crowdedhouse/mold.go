package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/narrative"
)

func moldCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "mold <character> <key> <value>",
		Short: "Set one attribute of a character",
		Long: "Set one attribute of a character. A value that parses as JSON is stored as that\n" +
			"JSON value; anything else is stored as a string.",
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := moldValue(strings.Join(args[2:], " "))
			return withEngine(cmd, func(ctx context.Context, engine *narrative.Engine) error {
				c, err := engine.Mold(ctx, channel, args[0], args[1], value)
				if err != nil {
					return explain(err)
				}
				state, err := json.MarshalIndent(c.State, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n%s\n", c.Name, state)
				return nil
			})
		},
	}
	channelFlag(cmd, &channel)
	return cmd
}

func moldValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return raw
}
