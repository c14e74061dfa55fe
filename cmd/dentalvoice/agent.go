package main

import (
	"context"
	"time"

	"dentalvoice/internal/api"
	"dentalvoice/internal/logging"
	"dentalvoice/internal/metrics"

	"github.com/spf13/cobra"
)

func newAgentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the local agent: offline queue timer and agent API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			base, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			logger := logging.Component(base, "agent-main")

			runCtx := cmd.Context()
			p, err := openPipeline(runCtx, cfg, base)
			if err != nil {
				return err
			}
			defer p.Close()

			if cfg.Monitoring.PrometheusEnabled {
				go metrics.Serve(runCtx, cfg.Monitoring.PrometheusPort, logger)
			}

			var server *api.HTTPServer
			if cfg.API.Enabled {
				server = api.NewAgentServer(cfg.API, p.session, p.chart, p.journal, base)
				go func() {
					if err := server.Start(); err != nil {
						logger.Error().Err(err).Msg("agent api stopped")
					}
				}()
			}

			logger.Info().
				Str("status", string(p.session.Status())).
				Int("queued", len(p.session.Pending())).
				Bool("api", cfg.API.Enabled).
				Msg("agent started")

			<-runCtx.Done()
			logger.Info().Msg("shutdown signal received")

			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}
			logger.Info().Msg("agent stopped")
			return nil
		},
	}
}
