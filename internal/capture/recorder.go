package capture

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"dentalvoice/internal/models"
)

var (
	// ErrNoAudio means the capture finished without any audio data.
	ErrNoAudio = errors.New("no audio captured")
	// ErrNotRecording is returned by Write or Stop outside a capture.
	ErrNotRecording     = errors.New("not recording")
	ErrAlreadyRecording = errors.New("already recording")
)

// Recorder accumulates audio chunks between Begin and Stop.
type Recorder struct {
	mu      sync.Mutex
	active  bool
	mime    string
	started time.Time
	buf     bytes.Buffer
	meta    map[string]any
	now     func() time.Time
}

// NewRecorder uses now for timestamps and duration; nil means time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Begin starts a capture in the given media type.
func (r *Recorder) Begin(mimeType string, meta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ErrAlreadyRecording
	}
	if mimeType == "" {
		mimeType = models.DefaultMimeType
	}
	r.active = true
	r.mime = mimeType
	r.meta = meta
	r.started = r.now()
	r.buf.Reset()
	return nil
}

// Write appends a chunk of encoded audio.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return 0, ErrNotRecording
	}
	return r.buf.Write(p)
}

// Stop ends the capture and returns the recording. The duration is whole seconds.
func (r *Recorder) Stop() (models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return models.Recording{}, ErrNotRecording
	}
	r.active = false

	if r.buf.Len() == 0 {
		return models.Recording{}, ErrNoAudio
	}

	audio := append([]byte(nil), r.buf.Bytes()...)
	r.buf.Reset()
	return models.Recording{
		Audio:      audio,
		MimeType:   r.mime,
		Duration:   r.now().Sub(r.started).Round(time.Second),
		CapturedAt: r.started,
		Meta:       r.meta,
	}, nil
}

// Cancel discards the capture in progress.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.meta = nil
	r.buf.Reset()
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
