package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the story tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := openDB(ctx, projectConfig)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			if err := db.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			logger.Info("schema ready", zap.String("database", redactDSN(projectConfig.Database.DSN)))
			return nil
		},
	}
}
