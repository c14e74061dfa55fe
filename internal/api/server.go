package api

import (
	"net/http"

	"dentalvoice/internal/chart"
	"dentalvoice/internal/config"
	"dentalvoice/internal/events"

	"github.com/rs/zerolog"
)

// NewAgentServer exposes the local recording pipeline.
func NewAgentServer(cfg config.APIConfig, pipeline Pipeline, c *chart.Chart, journal *events.Journal, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	NewAgentHandlers(pipeline, c, journal).Register(mux)

	return NewHTTPServer("agent-api", cfg.HTTP.Port, mux, NewHTTPAuth(cfg.Auth, cfg.RateLimit), logger)
}

// NewRelayServer mounts the voice relay behind auth and rate limiting.
func NewRelayServer(cfg config.RelayConfig, relay http.Handler, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/api/v1/voice", relay)

	srv := NewHTTPServer("relay", cfg.HTTP.Port, mux, NewHTTPAuth(cfg.Auth, cfg.RateLimit), logger)
	// the webhook may take the whole upload timeout to answer
	srv.server.WriteTimeout = cfg.Timeout + srv.server.WriteTimeout
	return srv
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
