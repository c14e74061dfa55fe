package repository

import (
	"context"
	"sync"

	"dentalvoice/internal/domain"
	"dentalvoice/internal/models"
)

// MemoryFailureStore keeps the set in process memory; nothing survives a restart.
type MemoryFailureStore struct {
	mu   sync.Mutex
	list []models.PendingRecording
}

func NewMemoryFailureStore() *MemoryFailureStore {
	return &MemoryFailureStore{}
}

func (r *MemoryFailureStore) Load(ctx context.Context) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PendingRecording{}, r.list...), nil
}

func (r *MemoryFailureStore) SaveAll(ctx context.Context, recordings []models.PendingRecording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append([]models.PendingRecording{}, recordings...)
	return nil
}

func (r *MemoryFailureStore) Update(ctx context.Context, fn domain.UpdateFunc) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append([]models.PendingRecording{}, fn(append([]models.PendingRecording{}, r.list...))...)
	return append([]models.PendingRecording{}, r.list...), nil
}

func (r *MemoryFailureStore) Append(ctx context.Context, recording models.PendingRecording) error {
	_, err := r.Update(ctx, appendRecording(recording))
	return err
}
