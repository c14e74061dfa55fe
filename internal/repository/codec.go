package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"dentalvoice/internal/models"

	"github.com/rs/zerolog"
)

// ErrStoreUnavailable is returned when no backend could serve a request.
var ErrStoreUnavailable = errors.New("failure store unavailable")

// decodeList parses a stored set. Corrupt data is logged and treated as empty.
func decodeList(raw []byte, key string, logger *zerolog.Logger) []models.PendingRecording {
	if len(raw) == 0 {
		return []models.PendingRecording{}
	}
	var list []models.PendingRecording
	if err := json.Unmarshal(raw, &list); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("stored recordings are unreadable, starting empty")
		return []models.PendingRecording{}
	}
	if list == nil {
		list = []models.PendingRecording{}
	}
	return list
}

func encodeList(list []models.PendingRecording) ([]byte, error) {
	if list == nil {
		list = []models.PendingRecording{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recordings: %w", err)
	}
	return data, nil
}

func appendRecording(recording models.PendingRecording) func([]models.PendingRecording) []models.PendingRecording {
	return func(current []models.PendingRecording) []models.PendingRecording {
		return append(current, recording)
	}
}

func nopLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger != nil {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}
