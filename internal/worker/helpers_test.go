package worker

import (
	"context"
	"sync"
	"time"

	"dentalvoice/internal/models"
	"dentalvoice/internal/transport"

	"github.com/cenkalti/backoff/v4"
)

type step struct {
	result  *models.RelayResult
	latency time.Duration
	err     error
}

func ok(result *models.RelayResult) step {
	return step{result: result, latency: 100 * time.Millisecond}
}

func fail(status int) step {
	kind := transport.KindRetryable
	if status == 500 {
		kind = transport.KindTerminal
	}
	return step{err: &transport.UploadError{Kind: kind, StatusCode: status}, latency: 100 * time.Millisecond}
}

// scriptedUploader replays steps in order, then repeats the fallback.
type scriptedUploader struct {
	mu       sync.Mutex
	steps    []step
	fallback step
	calls    []transport.Attempt
	// gate, when set, blocks every call until it is closed.
	gate    chan struct{}
	started chan struct{}
}

func (u *scriptedUploader) Upload(ctx context.Context, a transport.Attempt) (*models.RelayResult, time.Duration, error) {
	u.mu.Lock()
	i := len(u.calls)
	u.calls = append(u.calls, a)
	gate, started := u.gate, u.started
	u.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	s := u.fallback
	if i < len(u.steps) {
		s = u.steps[i]
	}
	return s.result, s.latency, s.err
}

func (u *scriptedUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) recorded() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

func withTimer(c *Coordinator, t *fakeTimer) {
	c.newTimer = func() backoff.Timer { return t }
}

func testRecording() models.Recording {
	return models.Recording{
		Audio:      []byte("clip"),
		MimeType:   "audio/webm",
		Duration:   10 * time.Second,
		CapturedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}
}

func pendingFor(id string, attempts int) models.PendingRecording {
	return models.NewPendingRecording(id, testRecording(), attempts, time.Date(2024, 5, 2, 10, 1, 0, 0, time.UTC))
}
