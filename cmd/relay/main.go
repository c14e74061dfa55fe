package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dentalvoice/internal/api"
	"dentalvoice/internal/config"
	"dentalvoice/internal/logging"
	"dentalvoice/internal/metrics"
	"dentalvoice/internal/relay"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "relay-main")

	forwarder, err := relay.NewForwarder(cfg.Relay, logging.Component(base, "webhook"))
	if err != nil {
		logger.Error().Err(err).Msg("create webhook forwarder")
		return err
	}
	handler := relay.NewHandler(forwarder, cfg.Relay.MaxBodyBytes, logging.Component(base, "voice"))
	httpServer := api.NewRelayServer(cfg.Relay, handler, base)

	if !cfg.Relay.Auth.Enabled {
		logger.Warn().Msg("relay auth is disabled; anyone who can reach the port can use the webhook")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		go metrics.Serve(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	return serve(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Str("addr", httpServer.Addr()).Msg("relay started")

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("relay shutdown")
	}

	logger.Info().Msg("relay stopped")
	return nil
}
