package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dentalvoice/internal/config"
	"dentalvoice/internal/database"
	"dentalvoice/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	abandonedSuffix = "abandoned"
	redisConnectMax = 10 * time.Second
)

// AbandonedKey names the dead-letter slot paired with a store key.
func AbandonedKey(key string) string {
	return key + ":" + abandonedSuffix
}

// Backends opens the configured drivers once and hands out stores per key.
type Backends struct {
	cfg    config.Config
	db     *database.DB
	redis  *redis.Client
	logger *zerolog.Logger
}

// OpenBackends connects whatever the driver and fallback settings need.
func OpenBackends(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*Backends, error) {
	b := &Backends{cfg: cfg, logger: nopLogger(logger)}

	for _, driver := range []string{cfg.Store.Driver, cfg.Store.Fallback} {
		switch driver {
		case config.DriverSQLite:
			if b.db != nil {
				continue
			}
			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("open sqlite store: %w", err)
			}
			b.db = db
		case config.DriverRedis:
			if b.redis != nil {
				continue
			}
			client, err := ConnectRedis(ctx, cfg.Redis, redisConnectMax, logger)
			if err != nil {
				if driver == cfg.Store.Driver && cfg.Store.Fallback != "" {
					// the failover wrapper starts degraded and keeps probing
					b.logger.Warn().Err(err).Msg("redis unavailable at startup")
					b.redis = NewRedisClient(cfg.Redis)
					continue
				}
				b.Close()
				return nil, fmt.Errorf("connect redis store: %w", err)
			}
			b.redis = client
		}
	}
	return b, nil
}

// Store returns the failure store for key, wrapped in failover when a fallback is configured.
func (b *Backends) Store(key string) (domain.FailureStore, error) {
	primary, err := b.open(b.cfg.Store.Driver, key)
	if err != nil {
		return nil, err
	}
	if b.cfg.Store.Fallback == "" || b.cfg.Store.Fallback == b.cfg.Store.Driver {
		return primary, nil
	}
	fallback, err := b.open(b.cfg.Store.Fallback, key)
	if err != nil {
		return nil, err
	}
	return NewFailoverFailureStore(primary, fallback, b.logger), nil
}

func (b *Backends) open(driver, key string) (domain.FailureStore, error) {
	switch driver {
	case config.DriverFile:
		return NewFileFailureStore(filePathFor(b.cfg.Store.FilePath, b.cfg.Store.Key, key), b.logger)
	case config.DriverSQLite:
		return NewSQLiteFailureStore(b.db, key, b.logger), nil
	case config.DriverRedis:
		return NewRedisFailureStore(b.redis, key, b.logger), nil
	case config.DriverMemory:
		return NewMemoryFailureStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func (b *Backends) Close() error {
	var firstErr error
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			firstErr = err
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// filePathFor maps "<base key>:<suffix>" onto a sibling file, e.g. failed.abandoned.json.
func filePathFor(basePath, baseKey, key string) string {
	if key == baseKey {
		return basePath
	}
	suffix := strings.TrimPrefix(key, baseKey+":")
	suffix = strings.NewReplacer(":", ".", "/", "_", "\\", "_").Replace(suffix)
	ext := filepath.Ext(basePath)
	return strings.TrimSuffix(basePath, ext) + "." + suffix + ext
}
