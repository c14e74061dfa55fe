package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dentalvoice/internal/config"
	"dentalvoice/internal/models"

	"github.com/rs/zerolog"
)

// maxResponseBytes caps how much of a relay response is read.
const maxResponseBytes = 10 << 20

// TokenSource supplies the bearer credential for each attempt.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed credential.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoCredential
	}
	return string(t), nil
}

// Attempt is one delivery try for a recording.
type Attempt struct {
	Audio      []byte
	MimeType   string
	Duration   time.Duration
	CapturedAt time.Time
	// Number is 1-based and only used for logging.
	Number int
	Meta   map[string]any
}

// AttemptFor builds attempt n for a recording.
func AttemptFor(rec models.Recording, n int) Attempt {
	return Attempt{
		Audio:      rec.Audio,
		MimeType:   rec.MimeType,
		Duration:   rec.Duration,
		CapturedAt: rec.CapturedAt,
		Number:     n,
		Meta:       rec.Meta,
	}
}

// Client posts recordings to the relay. It holds no per-recording state.
type Client struct {
	url        string
	source     string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewClient(cfg config.UploadConfig, tokens TokenSource, logger *zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.RelayURL) == "" {
		return nil, errors.New("upload.relay_url is required")
	}
	if tokens == nil {
		tokens = StaticToken(cfg.AccessToken)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = models.UploadTimeout
	}
	source := cfg.Source
	if source == "" {
		source = models.RelaySource
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		url:        cfg.RelayURL,
		source:     source,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// HTTPClient exposes the underlying client, e.g. for test transports.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Upload performs exactly one attempt and reports its round-trip latency.
func (c *Client) Upload(ctx context.Context, a Attempt) (*models.RelayResult, time.Duration, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		if err == nil {
			err = ErrNoCredential
		}
		return nil, 0, unsent("no access token", err)
	}

	body, err := json.Marshal(c.buildRequest(a))
	if err != nil {
		return nil, 0, unsent("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, unsent("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.now().Sub(start), retryable(0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	latency := c.now().Sub(start)
	if err != nil {
		return nil, latency, retryable(resp.StatusCode, "read response", err)
	}

	c.logger.Debug().
		Int("attempt", a.Number).
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Int("audio_bytes", len(a.Audio)).
		Msg("relay responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, latency, classify(resp.StatusCode, errorMessage(data))
	}

	result, err := Normalize(data)
	if err != nil {
		return nil, latency, retryable(resp.StatusCode, err.Error(), err)
	}
	return result, latency, nil
}

func (c *Client) buildRequest(a Attempt) models.RelayRequest {
	mime := a.MimeType
	if mime == "" {
		mime = models.DefaultMimeType
	}
	captured := a.CapturedAt
	if captured.IsZero() {
		captured = c.now()
	}
	ext := models.ExtensionForMime(mime)
	return models.RelayRequest{
		AudioData: base64.StdEncoding.EncodeToString(a.Audio),
		MimeType:  mime,
		FileName:  fmt.Sprintf("recording_%d.%s", captured.UnixMilli(), ext),
		Timestamp: captured.UTC().Format(time.RFC3339),
		Duration:  int(a.Duration.Round(time.Second) / time.Second),
		Source:    c.source,
		Type:      models.RecordingType,
		Meta:      a.Meta,
	}
}

// classify maps a non-2xx response to an UploadError. Only a server error
// (500, or a body naming an internal server error) marks the backend as down.
func classify(status int, msg string) *UploadError {
	if status == http.StatusInternalServerError || strings.Contains(strings.ToLower(msg), "internal server") {
		return &UploadError{Kind: KindTerminal, StatusCode: status, Message: msg}
	}
	return retryable(status, msg, nil)
}
