package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dentalvoice/internal/domain"
	"dentalvoice/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverFailureStore serves from primary until it errors, then from fallback.
// While down, the primary is retried on writes once per recovery interval.
//
// Whatever was written to the fallback is folded back into the primary when it
// recovers, or on the first Load of a later run, and the fallback is then cleared.
type FailoverFailureStore struct {
	primary   domain.FailureStore
	fallback  domain.FailureStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time

	mu sync.Mutex
	// last is the primary set as last read or written.
	last []models.PendingRecording
	// base is last frozen when the primary went down; seeded reports whether
	// the fallback has been written since.
	base   []models.PendingRecording
	seeded bool
}

func NewFailoverFailureStore(primary, fallback domain.FailureStore, logger *zerolog.Logger) *FailoverFailureStore {
	return &FailoverFailureStore{
		primary:  primary,
		fallback: fallback,
		logger:   nopLogger(logger),
		now:      time.Now,
	}
}

// markDown must be called with mu held.
func (r *FailoverFailureStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary failure store failed, falling back")
	if !r.isDown.Swap(true) {
		r.base = r.last
		r.seeded = false
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverFailureStore) recoveryDue() bool {
	return r.isDown.Load() && r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverFailureStore) Load(ctx context.Context) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isDown.Load() {
		list, err := r.primary.Load(ctx)
		if err == nil {
			r.last = list
			return r.restoreFallback(ctx, list), nil
		}
		r.markDown(err)
	}

	list, err := r.fallback.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !r.seeded {
		list = mergeRecordings(list, r.base, nil)
	}
	return list, nil
}

// restoreFallback folds recordings left in the fallback by an earlier run into the primary.
func (r *FailoverFailureStore) restoreFallback(ctx context.Context, primary []models.PendingRecording) []models.PendingRecording {
	pending, err := r.fallback.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Could not read fallback failure store")
		return primary
	}
	if len(pending) == 0 {
		return primary
	}

	merged, err := r.primary.Update(ctx, func(current []models.PendingRecording) []models.PendingRecording {
		return mergeRecordings(pending, current, nil)
	})
	if err != nil {
		// still served; the fallback is kept for the next run
		r.logger.Warn().Err(err).Msg("Could not move fallback recordings to primary")
		return mergeRecordings(pending, primary, nil)
	}
	r.last = merged
	r.clearFallback(ctx)
	r.logger.Info().Int("restored", len(pending)).Msg("Recordings from fallback failure store restored")
	return merged
}

func (r *FailoverFailureStore) SaveAll(ctx context.Context, recordings []models.PendingRecording) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isDown.Load() || r.recoveryDue() {
		err := r.primary.SaveAll(ctx, recordings)
		if err == nil {
			r.last = recordings
			r.recovered(ctx)
			return nil
		}
		r.markDown(err)
	}

	if err := r.fallback.SaveAll(ctx, recordings); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	r.seeded = true
	return nil
}

func (r *FailoverFailureStore) Update(ctx context.Context, fn domain.UpdateFunc) ([]models.PendingRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isDown.Load() || r.recoveryDue() {
		var pending []models.PendingRecording
		var base []models.PendingRecording
		if r.isDown.Load() && r.seeded {
			list, err := r.fallback.Load(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			pending, base = list, r.base
		}

		list, err := r.primary.Update(ctx, func(current []models.PendingRecording) []models.PendingRecording {
			if pending != nil {
				current = mergeRecordings(pending, current, base)
			}
			return fn(current)
		})
		if err == nil {
			r.last = list
			r.recovered(ctx)
			return list, nil
		}
		r.markDown(err)
	}

	seed := !r.seeded
	base := r.base
	list, err := r.fallback.Update(ctx, func(current []models.PendingRecording) []models.PendingRecording {
		if seed {
			current = mergeRecordings(current, base, nil)
		}
		return fn(current)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	r.seeded = true
	return list, nil
}

func (r *FailoverFailureStore) Append(ctx context.Context, recording models.PendingRecording) error {
	_, err := r.Update(ctx, appendRecording(recording))
	return err
}

// recovered must be called with mu held after a successful primary write.
func (r *FailoverFailureStore) recovered(ctx context.Context) {
	if !r.isDown.Swap(false) {
		return
	}
	r.logger.Info().Msg("Primary failure store recovered")
	if r.seeded {
		r.clearFallback(ctx)
	}
	r.base = nil
	r.seeded = false
}

func (r *FailoverFailureStore) clearFallback(ctx context.Context) {
	if err := r.fallback.SaveAll(ctx, nil); err != nil {
		r.logger.Warn().Err(err).Msg("Could not clear fallback failure store")
	}
}

// Degraded reports whether the fallback is currently serving.
func (r *FailoverFailureStore) Degraded() bool {
	return r.isDown.Load()
}

// mergeRecordings returns newer plus the entries of older it does not hold.
// Entries of older that appear in settled were removed on the newer side and stay dropped.
func mergeRecordings(newer, older, settled []models.PendingRecording) []models.PendingRecording {
	skip := make(map[string]bool, len(newer)+len(settled))
	for _, rec := range newer {
		skip[rec.ID] = true
	}
	for _, rec := range settled {
		skip[rec.ID] = true
	}
	out := append([]models.PendingRecording{}, newer...)
	for _, rec := range older {
		if !skip[rec.ID] {
			out = append(out, rec)
		}
	}
	return out
}
