package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPayload is returned when a stored audio payload cannot be decoded.
var ErrInvalidPayload = errors.New("invalid audio payload")

// Recording is a finished audio unit produced by capture.
type Recording struct {
	Audio      []byte
	MimeType   string
	Duration   time.Duration
	CapturedAt time.Time
	Meta       map[string]any
}

// DurationSeconds returns the recording length rounded to whole seconds.
func (r Recording) DurationSeconds() int {
	return int(r.Duration.Round(time.Second) / time.Second)
}

// PendingRecording is a recording that failed delivery and awaits retry.
type PendingRecording struct {
	ID              string    `json:"id"`
	AudioPayload    string    `json:"audioData"`
	CapturedAt      time.Time `json:"timestamp"`
	DurationSeconds int       `json:"duration"`
	Attempts        int       `json:"attempts"`
	LastAttemptAt   time.Time `json:"lastAttempt"`
	LastError       string    `json:"lastError,omitempty"`
	// Meta is forwarded to the relay unchanged on every later attempt.
	Meta map[string]any `json:"meta,omitempty"`
}

// NewPendingRecording wraps a recording that exhausted its immediate retries.
func NewPendingRecording(id string, rec Recording, attempts int, lastAttempt time.Time) PendingRecording {
	return PendingRecording{
		ID:              id,
		AudioPayload:    EncodePayload(rec.Audio, rec.MimeType),
		CapturedAt:      rec.CapturedAt,
		DurationSeconds: rec.DurationSeconds(),
		Attempts:        attempts,
		LastAttemptAt:   lastAttempt,
		Meta:            rec.Meta,
	}
}

// Recording decodes the stored payload back into a Recording.
func (p PendingRecording) Recording() (Recording, error) {
	audio, mime, err := DecodePayload(p.AudioPayload)
	if err != nil {
		return Recording{}, err
	}
	return Recording{
		Audio:      audio,
		MimeType:   mime,
		Duration:   time.Duration(p.DurationSeconds) * time.Second,
		CapturedAt: p.CapturedAt,
		Meta:       p.Meta,
	}, nil
}

// Summary drops the audio payload for listing purposes.
func (p PendingRecording) Summary() PendingSummary {
	return PendingSummary{
		ID:              p.ID,
		CapturedAt:      p.CapturedAt,
		DurationSeconds: p.DurationSeconds,
		Attempts:        p.Attempts,
		LastAttemptAt:   p.LastAttemptAt,
		LastError:       p.LastError,
		PayloadBytes:    len(p.AudioPayload),
	}
}

// PendingSummary is the payload-free view of a queued recording.
type PendingSummary struct {
	ID              string    `json:"id"`
	CapturedAt      time.Time `json:"timestamp"`
	DurationSeconds int       `json:"duration"`
	Attempts        int       `json:"attempts"`
	LastAttemptAt   time.Time `json:"lastAttempt"`
	LastError       string    `json:"lastError,omitempty"`
	PayloadBytes    int       `json:"payloadBytes"`
}

// EncodePayload produces a self-describing data URL carrying media type and bytes.
func EncodePayload(audio []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(audio)
}

// DecodePayload parses a data URL produced by EncodePayload.
func DecodePayload(payload string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(payload, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data url prefix", ErrInvalidPayload)
	}
	header, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data separator", ErrInvalidPayload)
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return nil, "", fmt.Errorf("%w: payload is not base64", ErrInvalidPayload)
	}
	if mime == "" {
		mime = DefaultMimeType
	}
	audio, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return audio, mime, nil
}
