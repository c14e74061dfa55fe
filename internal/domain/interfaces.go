package domain

import (
	"context"

	"dentalvoice/internal/models"
)

// UpdateFunc derives the new stored set from the current one. It may run more
// than once when another writer gets in first, so it must not have side effects.
type UpdateFunc func(current []models.PendingRecording) []models.PendingRecording

// FailureStore persists the set of recordings awaiting delivery under one fixed slot.
type FailureStore interface {
	// Load returns the stored set; missing or unreadable data yields an empty list.
	Load(ctx context.Context) ([]models.PendingRecording, error)
	// SaveAll replaces the stored set.
	SaveAll(ctx context.Context, recordings []models.PendingRecording) error
	// Update reads, transforms and writes the set as one step with respect to
	// every other writer of the slot, including other processes, and returns what was written.
	Update(ctx context.Context, fn UpdateFunc) ([]models.PendingRecording, error)
	Append(ctx context.Context, recording models.PendingRecording) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
