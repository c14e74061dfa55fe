package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dentalvoice/internal/config"
	"dentalvoice/internal/domain"
	"dentalvoice/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const updateMaxRetries = 5

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// NewRedisClient builds a redis client from the config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// ConnectRedis pings the server with exponential backoff until maxWait elapses.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, maxWait time.Duration, logger *zerolog.Logger) (*redis.Client, error) {
	client := NewRedisClient(cfg)
	logger = nopLogger(logger)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = maxWait

	err := backoff.RetryNotify(func() error {
		return Ping(ctx, client)
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).Str("address", cfg.Address).Msg("redis not reachable yet")
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// RedisFailureStore keeps the set as a JSON string under a single key.
type RedisFailureStore struct {
	mu     sync.Mutex
	client *redis.Client
	key    string
	logger *zerolog.Logger
}

func NewRedisFailureStore(client *redis.Client, key string, logger *zerolog.Logger) *RedisFailureStore {
	return &RedisFailureStore{client: client, key: key, logger: nopLogger(logger)}
}

func (r *RedisFailureStore) Load(ctx context.Context) ([]models.PendingRecording, error) {
	if r.client == nil {
		return nil, ErrStoreUnavailable
	}
	return r.get(ctx, r.client)
}

func (r *RedisFailureStore) SaveAll(ctx context.Context, recordings []models.PendingRecording) error {
	if r.client == nil {
		return ErrStoreUnavailable
	}
	data, err := encodeList(recordings)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save recordings to redis: %w", err)
	}
	return nil
}

// Update reads and rewrites the key inside WATCH so writers in other processes cannot lose entries.
func (r *RedisFailureStore) Update(ctx context.Context, fn domain.UpdateFunc) ([]models.PendingRecording, error) {
	if r.client == nil {
		return nil, ErrStoreUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var next []models.PendingRecording
	txf := func(tx *redis.Tx) error {
		list, err := r.get(ctx, tx)
		if err != nil {
			return err
		}
		next = fn(list)
		data, err := encodeList(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < updateMaxRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update recordings in redis: %w", err)
		}
		return next, nil
	}
	return nil, fmt.Errorf("failed to update recordings in redis: %w", redis.TxFailedErr)
}

func (r *RedisFailureStore) Append(ctx context.Context, recording models.PendingRecording) error {
	_, err := r.Update(ctx, appendRecording(recording))
	return err
}

func (r *RedisFailureStore) get(ctx context.Context, cmd stringGetter) ([]models.PendingRecording, error) {
	val, err := cmd.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.PendingRecording{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recordings from redis: %w", err)
	}
	return decodeList(val, r.key, r.logger), nil
}
