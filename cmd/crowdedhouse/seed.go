package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crowdedhouse/internal/ingest"
)

func seedCmd() *cobra.Command {
	var channel string
	var exclude []string
	cmd := &cobra.Command{
		Use:   "seed [path...]",
		Short: "Seed a channel from markdown story sheets",
		Long: "Seed a channel from markdown story sheets. Each sheet's frontmatter type is one of\n" +
			"character, npc, directive or opening. Paths default to seed.paths in the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			paths := args
			if len(paths) == 0 {
				paths = projectConfig.Seed.Paths
			}
			if len(paths) == 0 {
				return fmt.Errorf("no sheet paths given and seed.paths is empty")
			}
			if len(exclude) == 0 {
				exclude = projectConfig.Seed.Exclude
			}

			db, err := openDB(ctx, projectConfig)
			if err != nil {
				return err
			}
			defer db.Close(ctx)
			if err := db.EnsureSchema(ctx); err != nil {
				return err
			}

			result, err := ingest.Run(ctx, db, ingest.Options{
				ChannelID: channel,
				Paths:     paths,
				Exclude:   exclude,
			}, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Characters created: %d\n", result.CharactersCreated)
			fmt.Fprintf(out, "Characters updated: %d\n", result.CharactersUpdated)
			fmt.Fprintf(out, "Directives added: %d\n", result.DirectivesAdded)
			fmt.Fprintf(out, "Openings added: %d\n", result.OpeningsAdded)
			fmt.Fprintf(out, "Files skipped: %d\n", result.FilesSkipped)
			if len(result.Errors) > 0 {
				fmt.Fprintf(out, "Errors (%d):\n", len(result.Errors))
				for _, err := range result.Errors {
					fmt.Fprintf(out, "  - %v\n", err)
				}
				return fmt.Errorf("seeding finished with %d errors", len(result.Errors))
			}
			return nil
		},
	}
	channelFlag(cmd, &channel)
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Paths to skip")
	return cmd
}
