package models

import "time"

// ToothCondition values understood by the chart.
const (
	ConditionHealthy   = "healthy"
	ConditionRemoved   = "removed"
	ConditionCavity    = "cavity"
	ConditionCrown     = "crown"
	ConditionRootCanal = "root-canal"
	ConditionCracked   = "cracked"
	ConditionFilling   = "filling"
)

// ToothConditions lists every valid condition.
var ToothConditions = []string{
	ConditionHealthy,
	ConditionRemoved,
	ConditionCavity,
	ConditionCrown,
	ConditionRootCanal,
	ConditionCracked,
	ConditionFilling,
}

const (
	// MinTooth and MaxTooth bound the universal numbering used by the chart (upper 1-16, lower 17-32).
	MinTooth = 1
	MaxTooth = 32

	// DefaultMimeType is assumed when a recording carries no media type.
	DefaultMimeType = "audio/webm"

	// RelaySource identifies this application to the webhook.
	RelaySource = "DentalChart AI"

	// RecordingType is the relay "type" field for voice dictation.
	RecordingType = "voice_recording"

	// DefaultStoreKey is the fixed slot holding the failed recordings list.
	DefaultStoreKey = "failedRecordings"

	// MaxAttempts is the immediate-retry budget per recording.
	MaxAttempts = 3

	// DrainInterval is the offline queue timer cadence.
	DrainInterval = 5 * time.Minute

	// SlowThreshold marks a round trip as slow.
	SlowThreshold = 5 * time.Second

	// UploadTimeout bounds one relay request.
	UploadTimeout = 60 * time.Second
)

// RetryDelays is the fixed wait before each follow-up attempt.
var RetryDelays = []time.Duration{0, 5 * time.Second, 30 * time.Second}

// IsToothCondition reports whether c is a known condition.
func IsToothCondition(c string) bool {
	for _, known := range ToothConditions {
		if c == known {
			return true
		}
	}
	return false
}

// IsToothNumber reports whether n is on the chart.
func IsToothNumber(n int) bool {
	return n >= MinTooth && n <= MaxTooth
}
