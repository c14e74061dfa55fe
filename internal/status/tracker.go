package status

import (
	"sync"
	"sync/atomic"
	"time"

	"dentalvoice/internal/models"
	"dentalvoice/internal/transport"
)

// Listener is called after the status changes.
type Listener func(prev, next models.ConnectivityStatus)

// Tracker derives the connectivity status from transport attempts.
// It starts healthy; down is sticky until the relay answers with anything but a terminal failure.
type Tracker struct {
	current       atomic.Value // models.ConnectivityStatus
	slowThreshold time.Duration

	mu        sync.RWMutex
	listeners []Listener
}

func NewTracker(slowThreshold time.Duration) *Tracker {
	if slowThreshold <= 0 {
		slowThreshold = models.SlowThreshold
	}
	t := &Tracker{slowThreshold: slowThreshold}
	t.current.Store(models.StatusHealthy)
	return t
}

// OnChange registers a listener. Listeners run synchronously on the observing goroutine.
func (t *Tracker) OnChange(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

func (t *Tracker) Current() models.ConnectivityStatus {
	return t.current.Load().(models.ConnectivityStatus)
}

// Observe folds one attempt into the status and returns the new value.
func (t *Tracker) Observe(latency time.Duration, err error) models.ConnectivityStatus {
	for {
		prev := t.Current()
		next := t.next(prev, latency, err)
		if next == prev {
			return prev
		}
		if t.current.CompareAndSwap(prev, next) {
			t.notify(prev, next)
			return next
		}
	}
}

func (t *Tracker) next(prev models.ConnectivityStatus, latency time.Duration, err error) models.ConnectivityStatus {
	switch {
	case transport.NotSent(err):
		// nothing reached the relay, so nothing was learned about it
		return prev
	case transport.IsTerminal(err):
		return models.StatusDown
	case latency > t.slowThreshold:
		return models.StatusSlow
	case err == nil:
		return models.StatusHealthy
	case prev == models.StatusDown:
		// a non-terminal answer proves the backend is reachable again
		return models.StatusHealthy
	default:
		return prev
	}
}

func (t *Tracker) notify(prev, next models.ConnectivityStatus) {
	t.mu.RLock()
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.RUnlock()
	for _, l := range listeners {
		l(prev, next)
	}
}
