package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a failed upload attempt.
type Kind int

const (
	// KindRetryable is a transient failure worth another immediate attempt.
	KindRetryable Kind = iota
	// KindTerminal means the backend itself is down; the recording should go straight to the queue.
	KindTerminal
)

func (k Kind) String() string {
	if k == KindTerminal {
		return "terminal"
	}
	return "retryable"
}

// ErrNoCredential is wrapped when no bearer token is available.
var ErrNoCredential = errors.New("no access token available")

// UploadError describes why an attempt failed. StatusCode is 0 when no response arrived.
type UploadError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
	// NotSent marks failures raised before any request left the client.
	NotSent bool
}

func (e *UploadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("relay returned %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("relay request failed: %v", e.Err)
	default:
		return "relay request failed: " + e.Message
	}
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsTerminal reports whether err is an UploadError of KindTerminal.
func IsTerminal(err error) bool {
	var ue *UploadError
	return errors.As(err, &ue) && ue.Kind == KindTerminal
}

// NotSent reports whether err is an UploadError raised before anything reached the relay.
func NotSent(err error) bool {
	var ue *UploadError
	return errors.As(err, &ue) && ue.NotSent
}

// Outcome labels an attempt result for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsTerminal(err):
		return KindTerminal.String()
	default:
		return KindRetryable.String()
	}
}

func retryable(status int, msg string, err error) *UploadError {
	return &UploadError{Kind: KindRetryable, StatusCode: status, Message: msg, Err: err}
}

func unsent(msg string, err error) *UploadError {
	return &UploadError{Kind: KindRetryable, Message: msg, Err: err, NotSent: true}
}
