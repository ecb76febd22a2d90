package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crowdedhouse/internal/config"
	"crowdedhouse/internal/logging"
)

var (
	configPath string
	verbose    bool

	projectConfig *config.ProjectConfig
	logger        = zap.NewNop()
)

func main() {
	root := &cobra.Command{
		Use:           "crowdedhouse",
		Short:         "Narrator for collaborative stories told across channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
				Verbose:     verbose,
			})
			if err != nil {
				return err
			}
			projectConfig = cfg
			logger = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Project config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(initCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(promptCmd())
	root.AddCommand(continueCmd())
	root.AddCommand(askCmd())
	root.AddCommand(autogenCmd())
	root.AddCommand(spawnCmd())
	root.AddCommand(moldCmd())
	root.AddCommand(forkCmd())
	root.AddCommand(directiveCmd())
	root.AddCommand(charactersCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
