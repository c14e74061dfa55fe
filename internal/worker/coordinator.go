package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dentalvoice/internal/domain"
	"dentalvoice/internal/events"
	"dentalvoice/internal/metrics"
	"dentalvoice/internal/models"
	"dentalvoice/internal/status"
	"dentalvoice/internal/transport"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Uploader performs a single delivery attempt.
type Uploader interface {
	Upload(ctx context.Context, a transport.Attempt) (*models.RelayResult, time.Duration, error)
}

// Deliverer runs one bounded burst for a recording.
type Deliverer interface {
	Deliver(ctx context.Context, rec models.Recording) (*models.RelayResult, int, error)
}

// Coordinator retries one recording on a fixed schedule. A terminal failure ends
// the burst at once; attempts never overlap.
type Coordinator struct {
	uploader Uploader
	policy   RetryPolicy
	tracker  *status.Tracker
	events   domain.EventPublisher
	logger   *zerolog.Logger
	newTimer func() backoff.Timer
}

func NewCoordinator(uploader Uploader, policy RetryPolicy, tracker *status.Tracker, publisher domain.EventPublisher, logger *zerolog.Logger) *Coordinator {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if tracker == nil {
		tracker = status.NewTracker(0)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Coordinator{
		uploader: uploader,
		policy:   policy,
		tracker:  tracker,
		events:   publisher,
		logger:   logger,
		// nil selects the library's default timer
		newTimer: func() backoff.Timer { return nil },
	}
}

// Deliver returns the result and how many network attempts were made.
func (c *Coordinator) Deliver(ctx context.Context, rec models.Recording) (*models.RelayResult, int, error) {
	var (
		result   *models.RelayResult
		attempts int
	)

	operation := func() error {
		attempts++
		res, latency, err := c.uploader.Upload(ctx, transport.AttemptFor(rec, attempts))
		c.tracker.Observe(latency, err)
		metrics.ObserveUpload(transport.Outcome(err), latency.Seconds())

		if err == nil {
			result = res
			return nil
		}
		if transport.IsTerminal(err) {
			c.logger.Warn().Err(err).Int("attempt", attempts).Msg("relay backend down, giving up burst")
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_attempts", c.policy.MaxAttempts).
			Dur("retry_in", next).
			Msg("upload failed, retrying")
		if c.events != nil {
			_ = c.events.PublishJSON(events.NoticeRetrying, events.NoticePayload{
				Attempt:     attempts,
				MaxAttempts: c.policy.MaxAttempts,
				Message:     fmt.Sprintf("Upload failed, retrying (%d/%d)", attempts, c.policy.MaxAttempts),
			})
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(c.policy.BackOff(), ctx), notify, c.newTimer())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, attempts, fmt.Errorf("delivery interrupted after %d attempts: %w", attempts, err)
		}
		return nil, attempts, err
	}
	return result, attempts, nil
}
