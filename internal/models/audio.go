package models

import "strings"

// ExtensionForMime maps an audio media type to the file extension used in relay file names.
func ExtensionForMime(mime string) string {
	m := strings.ToLower(mime)
	switch {
	case m == "":
		return "webm"
	case strings.Contains(m, "mpeg"):
		return "mp3"
	case strings.Contains(m, "mp4"):
		return "mp4"
	case strings.Contains(m, "webm"):
		return "webm"
	case strings.Contains(m, "ogg"):
		return "ogg"
	case strings.Contains(m, "wav"):
		return "wav"
	default:
		return "webm"
	}
}

// StripDataURL removes a "data:<mime>;base64," prefix if present.
func StripDataURL(audioData string) string {
	if !strings.HasPrefix(audioData, "data:") {
		return audioData
	}
	if i := strings.LastIndex(audioData, ","); i >= 0 {
		return audioData[i+1:]
	}
	return audioData
}
