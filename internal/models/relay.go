package models

// RelayRequest is the JSON body accepted by the relay and forwarded to the webhook.
type RelayRequest struct {
	AudioData string         `json:"audioData"`
	MimeType  string         `json:"mimeType"`
	Extension string         `json:"extension,omitempty"`
	FileName  string         `json:"fileName"`
	Timestamp string         `json:"timestamp"`
	Duration  int            `json:"duration"`
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Meta      map[string]any `json:"meta"`
}

// RelayError is the error body returned by the relay on non-2xx responses.
type RelayError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
