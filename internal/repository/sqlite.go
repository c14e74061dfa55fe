package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dentalvoice/internal/database"
	"dentalvoice/internal/domain"
	"dentalvoice/internal/models"

	"github.com/rs/zerolog"
)

// SQLiteFailureStore keeps the set as one row of the kv_store table.
type SQLiteFailureStore struct {
	db     *database.DB
	key    string
	mu     sync.Mutex
	logger *zerolog.Logger
}

func NewSQLiteFailureStore(db *database.DB, key string, logger *zerolog.Logger) *SQLiteFailureStore {
	return &SQLiteFailureStore{db: db, key: key, logger: nopLogger(logger)}
}

func (r *SQLiteFailureStore) Load(ctx context.Context) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *SQLiteFailureStore) SaveAll(ctx context.Context, recordings []models.PendingRecording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, recordings)
}

// Update runs inside one sqlite transaction, so other processes on the same database file cannot interleave.
func (r *SQLiteFailureStore) Update(ctx context.Context, fn domain.UpdateFunc) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil, ErrStoreUnavailable
	}

	var next []models.PendingRecording
	err := r.db.UpdateValue(ctx, r.key, func(current []byte) ([]byte, error) {
		next = fn(decodeList(current, r.key, r.logger))
		return encodeList(next)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update recordings in sqlite: %w", err)
	}
	return next, nil
}

func (r *SQLiteFailureStore) Append(ctx context.Context, recording models.PendingRecording) error {
	_, err := r.Update(ctx, appendRecording(recording))
	return err
}

func (r *SQLiteFailureStore) load(ctx context.Context) ([]models.PendingRecording, error) {
	if r.db == nil {
		return nil, ErrStoreUnavailable
	}
	raw, err := r.db.GetValue(ctx, r.key)
	if errors.Is(err, database.ErrNotFound) {
		return []models.PendingRecording{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recordings from sqlite: %w", err)
	}
	return decodeList(raw, r.key, r.logger), nil
}

func (r *SQLiteFailureStore) save(ctx context.Context, list []models.PendingRecording) error {
	if r.db == nil {
		return ErrStoreUnavailable
	}
	data, err := encodeList(list)
	if err != nil {
		return err
	}
	if err := r.db.PutValue(ctx, r.key, data); err != nil {
		return fmt.Errorf("failed to save recordings to sqlite: %w", err)
	}
	return nil
}
