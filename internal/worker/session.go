package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"dentalvoice/internal/domain"
	"dentalvoice/internal/events"
	"dentalvoice/internal/metrics"
	"dentalvoice/internal/models"
	"dentalvoice/internal/status"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrEmptyRecording is reported for a submission without audio.
var ErrEmptyRecording = errors.New("recording has no audio")

// Outcome of a submission.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
	// OutcomeRejected means the recording itself was unusable; nothing was sent or stored.
	OutcomeRejected Outcome = "rejected"
)

// Delivery is what the caller learns about one submitted recording.
type Delivery struct {
	Outcome     Outcome             `json:"outcome"`
	Result      *models.RelayResult `json:"result,omitempty"`
	Attempts    int                 `json:"attempts"`
	RecordingID string              `json:"recordingId,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// SessionOptions wires a Session.
type SessionOptions struct {
	Uploader      Uploader
	Store         domain.FailureStore
	Abandoned     domain.FailureStore
	Retry         RetryPolicy
	DrainInterval time.Duration
	// QueueMaxAttempts abandons queued items at this many attempts; 0 keeps them.
	QueueMaxAttempts int
	// QueueRefresh re-reads a store shared with other processes at this interval.
	QueueRefresh  time.Duration
	SlowThreshold time.Duration
	Events        domain.EventPublisher
	Logger        *zerolog.Logger
}

// Session owns the pipeline of one recording session: status, retry burst and offline queue.
type Session struct {
	tracker     *status.Tracker
	coordinator *Coordinator
	queue       *OfflineQueue
	events      domain.EventPublisher
	logger      *zerolog.Logger
	onResult    DeliveredFunc
	// offline is raised when a recording is queued and cleared by a direct delivery.
	offline atomic.Bool
	newID   func() string
	now     func() time.Time
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Uploader == nil {
		return nil, errors.New("session needs an uploader")
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	tracker := status.NewTracker(opts.SlowThreshold)
	coordinator := NewCoordinator(opts.Uploader, opts.Retry, tracker, opts.Events, logger)
	queue, err := NewOfflineQueue(QueueOptions{
		Store:           opts.Store,
		Abandoned:       opts.Abandoned,
		Deliverer:       coordinator,
		Events:          opts.Events,
		Logger:          logger,
		Interval:        opts.DrainInterval,
		MaxAttempts:     opts.QueueMaxAttempts,
		RefreshInterval: opts.QueueRefresh,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		tracker:     tracker,
		coordinator: coordinator,
		queue:       queue,
		events:      opts.Events,
		logger:      logger,
		newID:       uuid.NewString,
		now:         time.Now,
	}

	tracker.OnChange(func(prev, next models.ConnectivityStatus) {
		metrics.SetConnectivity(next.Gauge())
		logger.Info().Str("from", string(prev)).Str("to", string(next)).Msg("connectivity changed")
		s.publish(events.NoticeStatusChanged, events.NoticePayload{Status: string(next)})
	})
	queue.OnDelivered(s.delivered)

	return s, nil
}

// OnResult sets the callback receiving every relay result, direct or drained.
// Set it before Start.
func (s *Session) OnResult(fn DeliveredFunc) {
	s.onResult = fn
}

// Start restores the offline queue.
func (s *Session) Start(ctx context.Context) error {
	metrics.SetConnectivity(s.tracker.Current().Gauge())
	if err := s.queue.Start(ctx); err != nil {
		return err
	}
	s.offline.Store(s.queue.Len() > 0)
	return nil
}

// Close stops the drain timer.
func (s *Session) Close() {
	s.queue.Stop()
}

// Submit delivers a recording or queues it. Network errors never escape; the
// Delivery says what happened.
func (s *Session) Submit(ctx context.Context, rec models.Recording) Delivery {
	if len(rec.Audio) == 0 {
		s.CaptureFailed(ErrEmptyRecording)
		return Delivery{Outcome: OutcomeRejected, Message: ErrEmptyRecording.Error()}
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = s.now()
	}
	if rec.MimeType == "" {
		rec.MimeType = models.DefaultMimeType
	}

	result, attempts, err := s.coordinator.Deliver(ctx, rec)
	if err == nil {
		metrics.IncDelivery(string(OutcomeDelivered))
		s.offline.Store(false)
		id := s.newID()
		s.delivered(id, result)
		return Delivery{Outcome: OutcomeDelivered, Result: result, Attempts: attempts, RecordingID: id}
	}

	pending := models.NewPendingRecording(s.newID(), rec, attempts, s.now())
	pending.LastError = err.Error()

	if qerr := s.queue.Enqueue(context.WithoutCancel(ctx), pending); qerr != nil {
		// still held in memory and retried by the timer
		s.logger.Error().Err(qerr).Str("id", pending.ID).Msg("failed to persist queued recording")
	}

	s.offline.Store(true)
	metrics.IncDelivery(string(OutcomeQueued))
	msg := "Recording saved locally and will sync when connection is restored."
	s.logger.Warn().Err(err).Str("id", pending.ID).Int("attempts", attempts).Msg("recording queued for later delivery")
	s.publish(events.NoticeQueued, events.NoticePayload{
		RecordingID: pending.ID,
		Attempt:     attempts,
		Message:     msg,
	})

	return Delivery{Outcome: OutcomeQueued, Attempts: attempts, RecordingID: pending.ID, Message: msg}
}

// CaptureFailed reports a capture error. It is never retried or queued.
func (s *Session) CaptureFailed(err error) {
	s.logger.Error().Err(err).Msg("capture failed")
	s.publish(events.NoticeCaptureFailed, events.NoticePayload{Message: err.Error()})
}

// RetryNow is the manual "retry now" trigger.
func (s *Session) RetryNow(ctx context.Context) (DrainReport, error) {
	return s.queue.RetryNow(ctx)
}

// Offline is the "working offline" indicator: raised when a recording is queued,
// lowered by the next direct delivery or once the queue is empty.
func (s *Session) Offline() bool {
	return s.offline.Load() && s.queue.Len() > 0
}

// Pending lists queued recordings without their audio.
func (s *Session) Pending() []models.PendingSummary {
	return s.queue.Summaries()
}

func (s *Session) Status() models.ConnectivityStatus {
	return s.tracker.Current()
}

func (s *Session) Queue() *OfflineQueue {
	return s.queue
}

func (s *Session) delivered(id string, result *models.RelayResult) {
	s.publish(events.NoticeDelivered, events.NoticePayload{
		RecordingID: id,
		Message:     "Voice recording processed",
	})
	if s.onResult != nil {
		s.onResult(id, result)
	}
}

func (s *Session) publish(eventType string, payload events.NoticePayload) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("failed to publish notice")
	}
}
