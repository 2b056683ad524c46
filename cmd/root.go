// Package cmd defines the ingestd command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-ingest-crawler/internal/api"
	"github.com/JakeFAU/legal-ingest-crawler/internal/config"
	"github.com/JakeFAU/legal-ingest-crawler/internal/logging"
	"github.com/JakeFAU/legal-ingest-crawler/internal/server"
)

// Service is what the commands drive. *server.App implements it.
type Service interface {
	Serve(ctx context.Context) error
	RunOnce(ctx context.Context) (api.RunSummary, error)
	Close()
}

type serviceKeyType string

const serviceKey serviceKeyType = "service"

// newService is swapped out in tests.
var newService = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// loadConfig is swapped out in tests.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	var cfgFile string
	var logger *zap.Logger

	root := &cobra.Command{
		Use:   "ingestd",
		Short: "Crawls legal sources and catalogues their text.",
		Long: `ingestd reads a CSV list of legal websites, crawls each one, and writes
the text of every page under {base_dir}/{jurisdiction}/{category} with a
metadata.csv index per directory.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			svc, err := newService(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), serviceKey, svc))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env INGEST_* overrides)")
	root.AddCommand(newServeCmd(), newRunCmd())
	return root
}

func resolveService(ctx context.Context) (Service, error) {
	svc, ok := ctx.Value(serviceKey).(Service)
	if !ok || svc == nil {
		return nil, errors.New("application services not initialized")
	}
	return svc, nil
}

// Execute runs the root command until it finishes or the process is
// signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
