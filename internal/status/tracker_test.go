package status

import (
	"errors"
	"testing"
	"time"

	"dentalvoice/internal/models"
	"dentalvoice/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTerminal  = &transport.UploadError{Kind: transport.KindTerminal, StatusCode: 500}
	errRetryable = &transport.UploadError{Kind: transport.KindRetryable, StatusCode: 503}
)

func TestTrackerRules(t *testing.T) {
	tests := []struct {
		name    string
		start   models.ConnectivityStatus
		latency time.Duration
		err     error
		want    models.ConnectivityStatus
	}{
		{"SuccessIsHealthy", models.StatusSlow, time.Second, nil, models.StatusHealthy},
		{"SlowSuccess", models.StatusHealthy, 6 * time.Second, nil, models.StatusSlow},
		{"ThresholdIsNotSlow", models.StatusHealthy, 5 * time.Second, nil, models.StatusHealthy},
		{"TerminalIsDown", models.StatusHealthy, time.Second, errTerminal, models.StatusDown},
		{"SlowTerminalIsDown", models.StatusHealthy, 10 * time.Second, errTerminal, models.StatusDown},
		{"RetryableKeepsHealthy", models.StatusHealthy, time.Second, errRetryable, models.StatusHealthy},
		{"RetryableKeepsSlow", models.StatusSlow, time.Second, errRetryable, models.StatusSlow},
		{"RetryableClearsDown", models.StatusDown, time.Second, errRetryable, models.StatusHealthy},
		{"NetworkErrorClearsDown", models.StatusDown, 0, errors.New("dial tcp: refused"), models.StatusHealthy},
		{"SlowRetryableIsSlow", models.StatusHealthy, 7 * time.Second, errRetryable, models.StatusSlow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(5 * time.Second)
			tr.current.Store(tt.start)
			assert.Equal(t, tt.want, tr.Observe(tt.latency, tt.err))
			assert.Equal(t, tt.want, tr.Current())
		})
	}
}

func TestTrackerStartsHealthy(t *testing.T) {
	assert.Equal(t, models.StatusHealthy, NewTracker(0).Current())
}

func TestTrackerDownIsSticky(t *testing.T) {
	tr := NewTracker(5 * time.Second)
	tr.Observe(time.Second, errTerminal)
	tr.Observe(time.Second, errTerminal)
	assert.Equal(t, models.StatusDown, tr.Current())

	tr.Observe(time.Second, nil)
	assert.Equal(t, models.StatusHealthy, tr.Current())
}

func TestTrackerIgnoresAttemptsThatNeverLeft(t *testing.T) {
	tr := NewTracker(5 * time.Second)
	tr.Observe(time.Second, errTerminal)
	require.Equal(t, models.StatusDown, tr.Current())

	noToken := &transport.UploadError{Kind: transport.KindRetryable, Err: transport.ErrNoCredential, NotSent: true}
	tr.Observe(0, noToken)
	assert.Equal(t, models.StatusDown, tr.Current())

	tr.Observe(time.Second, errRetryable)
	assert.Equal(t, models.StatusHealthy, tr.Current())
}

func TestTrackerListener(t *testing.T) {
	tr := NewTracker(5 * time.Second)
	var changes [][2]models.ConnectivityStatus
	tr.OnChange(func(prev, next models.ConnectivityStatus) {
		changes = append(changes, [2]models.ConnectivityStatus{prev, next})
	})

	tr.Observe(time.Second, nil)
	tr.Observe(time.Second, errTerminal)
	tr.Observe(time.Second, errTerminal)
	tr.Observe(time.Second, nil)

	assert.Equal(t, [][2]models.ConnectivityStatus{
		{models.StatusHealthy, models.StatusDown},
		{models.StatusDown, models.StatusHealthy},
	}, changes)
}
