package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dentalvoice/internal/domain"
	"dentalvoice/internal/events"
	"dentalvoice/internal/metrics"
	"dentalvoice/internal/models"

	"github.com/rs/zerolog"
)

// Drain triggers, used as metric labels.
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// DeliveredFunc receives results of recordings delivered from the queue.
type DeliveredFunc func(id string, result *models.RelayResult)

// DrainReport summarizes one pass over the queue.
type DrainReport struct {
	Skipped   bool     `json:"skipped"`
	Attempted int      `json:"attempted"`
	Delivered []string `json:"delivered"`
	Failed    int      `json:"failed"`
	Corrupt   int      `json:"corrupt"`
	Abandoned []string `json:"abandoned,omitempty"`
	Remaining int      `json:"remaining"`
}

// QueueOptions configures an OfflineQueue.
type QueueOptions struct {
	Store     domain.FailureStore
	Abandoned domain.FailureStore
	Deliverer Deliverer
	Events    domain.EventPublisher
	Logger    *zerolog.Logger
	// Interval is the timer cadence while the queue is non-empty.
	Interval time.Duration
	// MaxAttempts abandons an item once its attempts reach it; 0 keeps items forever.
	MaxAttempts int
	// RefreshInterval re-reads the store to pick up recordings queued by other
	// processes sharing it; 0 disables the refresh.
	RefreshInterval time.Duration
}

// OfflineQueue owns the set of recordings awaiting delivery in this process.
// Every write to the failure store is a single Update against the stored set,
// so processes sharing the store never overwrite each other's entries.
type OfflineQueue struct {
	store           domain.FailureStore
	abandoned       domain.FailureStore
	deliverer       Deliverer
	events          domain.EventPublisher
	logger          *zerolog.Logger
	interval        time.Duration
	refreshInterval time.Duration
	maxAttempts     int

	mu    sync.Mutex
	items []models.PendingRecording
	// unsaved holds ids only in memory because the store rejected a write.
	unsaved map[string]bool

	draining atomic.Bool

	timerMu   sync.Mutex
	baseCtx   context.Context
	stopTimer context.CancelFunc
	stopSync  context.CancelFunc
	newTicker func(time.Duration) (<-chan time.Time, func())

	onDelivered DeliveredFunc
	now         func() time.Time
}

func NewOfflineQueue(opts QueueOptions) (*OfflineQueue, error) {
	if opts.Store == nil {
		return nil, errors.New("offline queue needs a failure store")
	}
	if opts.Deliverer == nil {
		return nil, errors.New("offline queue needs a deliverer")
	}
	if opts.Interval <= 0 {
		opts.Interval = models.DrainInterval
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &OfflineQueue{
		store:           opts.Store,
		abandoned:       opts.Abandoned,
		deliverer:       opts.Deliverer,
		events:          opts.Events,
		logger:          logger,
		interval:        opts.Interval,
		refreshInterval: opts.RefreshInterval,
		maxAttempts:     opts.MaxAttempts,
		unsaved:         make(map[string]bool),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
		now: time.Now,
	}, nil
}

// OnDelivered sets the callback for recordings delivered by a drain pass.
func (q *OfflineQueue) OnDelivered(fn DeliveredFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDelivered = fn
}

// Start loads the persisted set and arms the timer if anything is waiting.
func (q *OfflineQueue) Start(ctx context.Context) error {
	list, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load failed recordings: %w", err)
	}

	q.mu.Lock()
	q.items = list
	n := len(q.items)
	q.mu.Unlock()

	q.timerMu.Lock()
	q.baseCtx = ctx
	if q.refreshInterval > 0 && q.stopSync == nil {
		syncCtx, cancel := context.WithCancel(ctx)
		q.stopSync = cancel
		ticks, stop := q.newTicker(q.refreshInterval)
		go q.syncLoop(syncCtx, ticks, stop)
	}
	q.timerMu.Unlock()

	metrics.SetQueueDepth(n)
	if n > 0 {
		q.logger.Info().Int("queued", n).Msg("offline queue restored")
		q.arm()
	}
	return nil
}

// Stop tears the timers down. Queued items stay persisted.
func (q *OfflineQueue) Stop() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.stopTimer != nil {
		q.stopTimer()
		q.stopTimer = nil
	}
	if q.stopSync != nil {
		q.stopSync()
		q.stopSync = nil
	}
	q.baseCtx = nil
}

// Enqueue adds a recording and persists it. When the store fails the recording
// is still kept in memory and written with the next successful update.
func (q *OfflineQueue) Enqueue(ctx context.Context, rec models.PendingRecording) error {
	q.mu.Lock()
	list, err := q.store.Update(ctx, func(current []models.PendingRecording) []models.PendingRecording {
		return upsert(q.withUnsaved(current), rec)
	})
	if err != nil {
		q.items = upsert(q.items, rec)
		q.unsaved[rec.ID] = true
	} else {
		q.items = list
		clear(q.unsaved)
	}
	n := len(q.items)
	q.mu.Unlock()

	metrics.SetQueueDepth(n)
	q.arm()

	if err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}

// Refresh replaces the in-memory set with the stored one, keeping anything not yet
// persisted. Other processes sharing the store become visible here.
func (q *OfflineQueue) Refresh(ctx context.Context) error {
	list, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load failed recordings: %w", err)
	}

	q.mu.Lock()
	q.items = q.withUnsaved(list)
	n := len(q.items)
	if n == 0 && !q.draining.Load() {
		q.disarm()
	}
	q.mu.Unlock()

	metrics.SetQueueDepth(n)
	if n > 0 {
		q.arm()
	}
	return nil
}

// withUnsaved adds the memory-only items missing from list. Callers hold mu.
func (q *OfflineQueue) withUnsaved(list []models.PendingRecording) []models.PendingRecording {
	if len(q.unsaved) == 0 {
		return list
	}
	present := make(map[string]bool, len(list))
	for _, item := range list {
		present[item.ID] = true
	}
	out := append([]models.PendingRecording(nil), list...)
	for _, item := range q.items {
		if q.unsaved[item.ID] && !present[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

func upsert(list []models.PendingRecording, rec models.PendingRecording) []models.PendingRecording {
	out := make([]models.PendingRecording, 0, len(list)+1)
	for _, item := range list {
		if item.ID != rec.ID {
			out = append(out, item)
		}
	}
	return append(out, rec)
}

// RetryNow drains outside the timer cadence.
func (q *OfflineQueue) RetryNow(ctx context.Context) (DrainReport, error) {
	return q.drain(ctx, TriggerManual)
}

// DrainOnce runs a single pass. A concurrent call returns a skipped report without touching the network.
func (q *OfflineQueue) DrainOnce(ctx context.Context) (DrainReport, error) {
	return q.drain(ctx, TriggerTimer)
}

func (q *OfflineQueue) drain(ctx context.Context, trigger string) (DrainReport, error) {
	if !q.draining.CompareAndSwap(false, true) {
		q.logger.Debug().Str("trigger", trigger).Msg("drain already running, skipping")
		return DrainReport{Skipped: true}, nil
	}
	defer q.draining.Store(false)

	metrics.IncDrain(trigger)

	if err := q.Refresh(ctx); err != nil {
		q.logger.Warn().Err(err).Msg("could not re-read the store, draining the in-memory set")
	}

	q.mu.Lock()
	snapshot := append([]models.PendingRecording(nil), q.items...)
	onDelivered := q.onDelivered
	q.mu.Unlock()

	report := DrainReport{Delivered: []string{}}
	updated := make(map[string]models.PendingRecording)
	delivered := make(map[string]bool)
	abandoned := make(map[string]bool)

	for _, item := range snapshot {
		if ctx.Err() != nil {
			break
		}

		rec, err := item.Recording()
		if err != nil {
			q.logger.Error().Err(err).Str("id", item.ID).Msg("queued recording is unreadable, leaving it in place")
			item.LastError = err.Error()
			updated[item.ID] = item
			report.Corrupt++
			continue
		}

		report.Attempted++
		result, _, err := q.deliverer.Deliver(ctx, rec)
		if err == nil {
			delivered[item.ID] = true
			report.Delivered = append(report.Delivered, item.ID)
			metrics.IncDelivery("delivered")
			if onDelivered != nil {
				onDelivered(item.ID, result)
			}
			continue
		}
		if ctx.Err() != nil {
			// interrupted, not a failed pass for this item
			break
		}

		item.Attempts++
		item.LastAttemptAt = q.now()
		item.LastError = err.Error()
		report.Failed++

		if q.maxAttempts > 0 && item.Attempts >= q.maxAttempts {
			if q.abandon(ctx, item) {
				abandoned[item.ID] = true
				report.Abandoned = append(report.Abandoned, item.ID)
				continue
			}
		}
		updated[item.ID] = item
	}

	settle := func(current []models.PendingRecording) []models.PendingRecording {
		current = q.withUnsaved(current)
		out := make([]models.PendingRecording, 0, len(current))
		for _, item := range current {
			if delivered[item.ID] || abandoned[item.ID] {
				continue
			}
			if u, ok := updated[item.ID]; ok {
				item = u
			}
			out = append(out, item)
		}
		return out
	}

	q.mu.Lock()
	list, persistErr := q.store.Update(context.WithoutCancel(ctx), settle)
	if persistErr != nil {
		// keep everything until a write succeeds again
		q.items = settle(q.items)
		for _, item := range q.items {
			q.unsaved[item.ID] = true
		}
	} else {
		q.items = list
		clear(q.unsaved)
	}
	report.Remaining = len(q.items)
	if report.Remaining == 0 {
		// under mu so a concurrent Enqueue either lands in the store first or re-arms after this
		q.disarm()
	}
	q.mu.Unlock()

	metrics.SetQueueDepth(report.Remaining)

	q.logger.Info().
		Str("trigger", trigger).
		Int("attempted", report.Attempted).
		Int("delivered", len(report.Delivered)).
		Int("failed", report.Failed).
		Int("remaining", report.Remaining).
		Msg("drain pass finished")

	if len(report.Delivered) > 0 && q.events != nil {
		_ = q.events.PublishJSON(events.NoticeDrained, events.NoticePayload{
			Delivered: len(report.Delivered),
			Remaining: report.Remaining,
			Message:   fmt.Sprintf("Successfully sent %d queued recording(s)", len(report.Delivered)),
		})
	}

	if persistErr != nil {
		return report, fmt.Errorf("persist queue: %w", persistErr)
	}
	return report, nil
}

// abandon moves an item to the dead-letter store; false keeps it queued.
func (q *OfflineQueue) abandon(ctx context.Context, item models.PendingRecording) bool {
	if q.abandoned == nil {
		return false
	}
	if err := q.abandoned.Append(context.WithoutCancel(ctx), item); err != nil {
		q.logger.Error().Err(err).Str("id", item.ID).Msg("failed to move recording to abandoned store")
		return false
	}
	q.logger.Warn().Str("id", item.ID).Int("attempts", item.Attempts).Msg("recording abandoned")
	metrics.IncDelivery("abandoned")
	if q.events != nil {
		_ = q.events.PublishJSON(events.NoticeAbandoned, events.NoticePayload{
			RecordingID: item.ID,
			Attempt:     item.Attempts,
			Message:     item.LastError,
		})
	}
	return true
}

// List returns a copy of the queued recordings.
func (q *OfflineQueue) List() []models.PendingRecording {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.PendingRecording(nil), q.items...)
}

// Summaries lists queued recordings without their audio.
func (q *OfflineQueue) Summaries() []models.PendingSummary {
	list := q.List()
	out := make([]models.PendingSummary, 0, len(list))
	for _, item := range list {
		out = append(out, item.Summary())
	}
	return out
}

func (q *OfflineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Draining reports whether a pass is in progress.
func (q *OfflineQueue) Draining() bool {
	return q.draining.Load()
}

// Armed reports whether the drain timer is running.
func (q *OfflineQueue) Armed() bool {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	return q.stopTimer != nil
}

func (q *OfflineQueue) arm() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.stopTimer != nil || q.baseCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(q.baseCtx)
	q.stopTimer = cancel
	ticks, stop := q.newTicker(q.interval)
	go q.loop(ctx, ticks, stop)
}

func (q *OfflineQueue) disarm() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.stopTimer != nil {
		q.stopTimer()
		q.stopTimer = nil
	}
}

func (q *OfflineQueue) syncLoop(ctx context.Context, ticks <-chan time.Time, stop func()) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if err := q.Refresh(ctx); err != nil {
				q.logger.Warn().Err(err).Msg("queue refresh failed")
			}
		}
	}
}

func (q *OfflineQueue) loop(ctx context.Context, ticks <-chan time.Time, stop func()) {
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if _, err := q.DrainOnce(ctx); err != nil {
				q.logger.Error().Err(err).Msg("scheduled drain failed")
			}
		}
	}
}
