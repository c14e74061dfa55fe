package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dentalvoice/internal/models"

	"github.com/gabriel-vasile/mimetype"
)

var extensionTypes = map[string]string{
	".webm": "audio/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
}

// FromFile loads a recorded file. The media type comes from the extension,
// or from the content when the extension is unknown.
func FromFile(path string, duration time.Duration) (models.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Recording{}, fmt.Errorf("read recording: %w", err)
	}
	if len(data) == 0 {
		return models.Recording{}, ErrNoAudio
	}

	mime, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = DetectMime(data)
	}

	captured := time.Now()
	if info, err := os.Stat(path); err == nil {
		captured = info.ModTime()
	}

	return models.Recording{
		Audio:      data,
		MimeType:   mime,
		Duration:   duration.Round(time.Second),
		CapturedAt: captured,
	}, nil
}

// FromReader reads a whole recording; an empty mimeType is sniffed.
func FromReader(r io.Reader, mimeType string, duration time.Duration, capturedAt time.Time) (models.Recording, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Recording{}, fmt.Errorf("read recording: %w", err)
	}
	if len(data) == 0 {
		return models.Recording{}, ErrNoAudio
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMime(data)
	}
	return models.Recording{
		Audio:      data,
		MimeType:   mimeType,
		Duration:   duration.Round(time.Second),
		CapturedAt: capturedAt,
	}, nil
}

// DetectMime sniffs an audio media type, falling back to the default.
func DetectMime(data []byte) string {
	detected := mimetype.Detect(data)
	switch {
	case detected.Is("video/webm"):
		// browsers record voice into a webm container
		return "audio/webm"
	case strings.HasPrefix(detected.String(), "audio/"):
		return detected.String()
	default:
		return models.DefaultMimeType
	}
}
