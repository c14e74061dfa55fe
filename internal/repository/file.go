package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dentalvoice/internal/domain"
	"dentalvoice/internal/models"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const lockRetryDelay = 50 * time.Millisecond

// FileFailureStore keeps the set in one JSON file. Writes go through a temp file
// and rename, guarded by an advisory lock shared with other processes.
type FileFailureStore struct {
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	logger *zerolog.Logger
}

func NewFileFailureStore(path string, logger *zerolog.Logger) (*FileFailureStore, error) {
	if path == "" {
		return nil, errors.New("file store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileFailureStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: nopLogger(logger),
	}, nil
}

func (r *FileFailureStore) Path() string { return r.path }

func (r *FileFailureStore) Load(ctx context.Context) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, fmt.Errorf("failed to lock %s: %w", r.path, lockErr(err))
	}
	defer r.lock.Unlock()

	return r.read()
}

func (r *FileFailureStore) SaveAll(ctx context.Context, recordings []models.PendingRecording) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return fmt.Errorf("failed to lock %s: %w", r.path, lockErr(err))
	}
	defer r.lock.Unlock()

	return r.write(recordings)
}

// Update holds the exclusive file lock across the read and the write, so a
// second process sharing the file sees either all of the change or none of it.
func (r *FileFailureStore) Update(ctx context.Context, fn domain.UpdateFunc) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, fmt.Errorf("failed to lock %s: %w", r.path, lockErr(err))
	}
	defer r.lock.Unlock()

	list, err := r.read()
	if err != nil {
		return nil, err
	}
	next := fn(list)
	if err := r.write(next); err != nil {
		return nil, err
	}
	return next, nil
}

func (r *FileFailureStore) Append(ctx context.Context, recording models.PendingRecording) error {
	_, err := r.Update(ctx, appendRecording(recording))
	return err
}

func (r *FileFailureStore) read() ([]models.PendingRecording, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.PendingRecording{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	return decodeList(data, r.path, r.logger), nil
}

func (r *FileFailureStore) write(list []models.PendingRecording) error {
	data, err := encodeList(list)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", r.path, err)
	}
	return nil
}

func lockErr(err error) error {
	if err != nil {
		return err
	}
	return errors.New("lock not acquired")
}
