// Package cmd defines the CLI commands for the url-indexer executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/config"
	"github.com/JakeFAU/url-indexer/internal/logging"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// appEnv is what every subcommand needs: the validated config and a logger.
type appEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

// loadEnv is a variable so tests can replace config loading.
var loadEnv = func(cfgFile string) (*appEnv, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return &appEnv{cfg: &cfg, logger: logger}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "url-indexer",
		Short: "Submits URLs to the Google Indexing API through an external indexing program.",
		Long: `url-indexer accepts single URLs and CSV uploads over a JSON API, stores
service-account keys, and runs the external indexing program one job at a
time while recording the progress it reports.`,
		SilenceUsage: true,

		// Runs before any subcommand: load config once and build the logger.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadEnv(cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(envKey).(*appEnv); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ./config.yaml, /etc/url-indexer/, $HOME/.url-indexer)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

func resolveEnv(ctx context.Context) (*appEnv, error) {
	rt, ok := ctx.Value(envKey).(*appEnv)
	if !ok || rt == nil {
		return nil, errors.New("config not loaded")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
