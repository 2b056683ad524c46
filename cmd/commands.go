package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run ingestion daily at ingest.run_hour",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			return svc.Serve(cmd.Context())
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()
			summary, err := svc.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			zap.L().Info("run complete",
				zap.Int64("run_number", summary.RunNumber),
				zap.Int("pages", summary.PagesCrawled),
				zap.Int("sites", summary.SitesCrawled),
				zap.Int("failed_sites", summary.SitesFailed))
			return nil
		},
	}
}
