// Package relay accepts voice uploads from clients and forwards them to the
// transcription webhook.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dentalvoice/internal/models"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const failureDetails = "Failed to process audio request"

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
}

type Handler struct {
	forwarder    *Forwarder
	maxBodyBytes int64
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewHandler(forwarder *Forwarder, maxBodyBytes int64, logger *zerolog.Logger) *Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Handler{
		forwarder:    forwarder,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
		now:          time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, models.RelayError{Error: "method not allowed"})
		return
	}

	req, err := ParseRequest(r, h.maxBodyBytes, h.now())
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			h.logger.Warn().Str("content_type", r.Header.Get("Content-Type")).Str("reason", reqErr.Message).Msg("rejected voice request")
			writeJSON(w, reqErr.Status, models.RelayError{Error: reqErr.Message})
			return
		}
		h.fail(w, err)
		return
	}

	status, body, err := h.forwarder.Forward(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}

	if status < 200 || status >= 300 {
		h.logger.Error().Int("status", status).Str("body", string(body)).Msg("webhook error")
		writeJSON(w, status, models.RelayError{
			Error:   fmt.Sprintf("Webhook responded with %d", status),
			Details: string(body),
		})
		return
	}

	if !gjson.ValidBytes(body) {
		body = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("voice relay failed")
	writeJSON(w, http.StatusInternalServerError, models.RelayError{Error: err.Error(), Details: failureDetails})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
