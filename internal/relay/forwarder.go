package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dentalvoice/internal/config"
	"dentalvoice/internal/metrics"
	"dentalvoice/internal/models"

	"github.com/rs/zerolog"
)

const maxWebhookResponseBytes = 10 << 20

// Forwarder posts normalized voice requests to the automation webhook.
type Forwarder struct {
	url        string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewForwarder(cfg config.RelayConfig, logger *zerolog.Logger) (*Forwarder, error) {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return nil, errors.New("relay.webhook_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = models.UploadTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Forwarder{
		url:        cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (f *Forwarder) HTTPClient() *http.Client { return f.httpClient }

// Forward sends req and returns the webhook status and body. An error means
// the webhook could not be reached at all.
func (f *Forwarder) Forward(ctx context.Context, req *models.RelayRequest) (int, []byte, error) {
	payload := *req
	payload.Extension = ""
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		metrics.IncRelayForward("error")
		return 0, nil, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseBytes))
	if err != nil {
		metrics.IncRelayForward("error")
		return 0, nil, fmt.Errorf("read webhook response: %w", err)
	}

	metrics.IncRelayForward(statusClass(resp.StatusCode))
	f.logger.Info().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("audio_b64_len", len(req.AudioData)).
		Str("mime_type", req.MimeType).
		Msg("webhook responded")

	return resp.StatusCode, data, nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
