package main

import (
	"context"
	"fmt"

	"dentalvoice/internal/chart"
	"dentalvoice/internal/config"
	"dentalvoice/internal/domain"
	"dentalvoice/internal/events"
	"dentalvoice/internal/logging"
	"dentalvoice/internal/models"
	"dentalvoice/internal/repository"
	"dentalvoice/internal/transport"
	"dentalvoice/internal/worker"

	"github.com/rs/zerolog"
)

// pipeline is everything one recording session needs, wired from config.
type pipeline struct {
	backends *repository.Backends
	session  *worker.Session
	chart    *chart.Chart
	bus      *events.EventBus
	journal  *events.Journal
}

func openPipeline(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*pipeline, error) {
	backends, err := repository.OpenBackends(ctx, *cfg, logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}

	store, err := backends.Store(cfg.Store.Key)
	if err != nil {
		_ = backends.Close()
		return nil, fmt.Errorf("open failure store: %w", err)
	}
	var abandoned domain.FailureStore
	if cfg.Queue.MaxAttempts > 0 {
		abandoned, err = backends.Store(repository.AbandonedKey(cfg.Store.Key))
		if err != nil {
			_ = backends.Close()
			return nil, fmt.Errorf("open abandoned store: %w", err)
		}
	}

	client, err := transport.NewClient(cfg.Upload, nil, logging.Component(logger, "transport"))
	if err != nil {
		_ = backends.Close()
		return nil, err
	}

	bus := events.NewEventBus()
	journal := events.NewJournal(200)
	bus.SubscribeAll(journal.Record)
	noticeLogger := logging.Component(logger, "notices")
	bus.SubscribeAll(func(e *events.Event) error {
		noticeLogger.Info().Str("type", e.Type).RawJSON("payload", e.Payload).Msg("notice")
		return nil
	})

	session, err := worker.NewSession(worker.SessionOptions{
		Uploader:         client,
		Store:            store,
		Abandoned:        abandoned,
		Retry:            worker.PolicyFromConfig(cfg.Retry),
		DrainInterval:    cfg.Queue.DrainInterval,
		QueueMaxAttempts: cfg.Queue.MaxAttempts,
		QueueRefresh:     cfg.Queue.RefreshInterval,
		SlowThreshold:    cfg.Upload.SlowThreshold,
		Events:           bus,
		Logger:           logging.Component(logger, "session"),
	})
	if err != nil {
		_ = backends.Close()
		return nil, err
	}

	c := chart.New()
	session.OnResult(func(id string, result *models.RelayResult) {
		report := c.ApplyResult(result)
		if len(report.Ignored) > 0 {
			logger.Warn().Str("id", id).Strs("ignored", report.Ignored).Msg("chart entries ignored")
		}
	})

	if err := session.Start(ctx); err != nil {
		_ = backends.Close()
		return nil, err
	}

	return &pipeline{backends: backends, session: session, chart: c, bus: bus, journal: journal}, nil
}

func (p *pipeline) Close() {
	p.session.Close()
	_ = p.backends.Close()
}
