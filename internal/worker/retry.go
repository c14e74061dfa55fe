package worker

import (
	"time"

	"dentalvoice/internal/config"
	"dentalvoice/internal/models"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the fixed schedule of one delivery burst.
type RetryPolicy struct {
	MaxAttempts int
	// Delays[i] is the wait after failed attempt i+1.
	Delays []time.Duration
}

// DefaultRetryPolicy is three attempts with waits of 0s and 5s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: models.MaxAttempts,
		Delays:      append([]time.Duration(nil), models.RetryDelays...),
	}
}

func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{MaxAttempts: cfg.MaxAttempts, Delays: cfg.Delays}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = models.MaxAttempts
	}
	if len(p.Delays) == 0 {
		p.Delays = append([]time.Duration(nil), models.RetryDelays...)
	}
	return p
}

// NextDelay returns the wait after the given failed attempt (1-based).
// Attempts past the end of the schedule reuse its last entry.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if len(r.Delays) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(r.Delays) {
		return r.Delays[len(r.Delays)-1]
	}
	return r.Delays[attempt-1]
}

// BackOff renders the policy as a backoff.BackOff that stops after MaxAttempts calls.
func (r RetryPolicy) BackOff() backoff.BackOff {
	return &fixedSchedule{policy: r}
}

type fixedSchedule struct {
	policy RetryPolicy
	failed int
}

func (s *fixedSchedule) NextBackOff() time.Duration {
	s.failed++
	if s.failed >= s.policy.MaxAttempts {
		return backoff.Stop
	}
	return s.policy.NextDelay(s.failed)
}

func (s *fixedSchedule) Reset() { s.failed = 0 }
