package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dentalvoice/internal/capture"
	"dentalvoice/internal/chart"
	"dentalvoice/internal/events"
	"dentalvoice/internal/export"
	"dentalvoice/internal/models"
	"dentalvoice/internal/worker"
)

// Pipeline is the part of a recording session the agent API drives.
type Pipeline interface {
	Submit(ctx context.Context, rec models.Recording) worker.Delivery
	CaptureFailed(err error)
	RetryNow(ctx context.Context) (worker.DrainReport, error)
	Pending() []models.PendingSummary
	Offline() bool
	Status() models.ConnectivityStatus
}

// AgentHandlers serve the local agent endpoints.
type AgentHandlers struct {
	pipeline Pipeline
	chart    *chart.Chart
	journal  *events.Journal
	maxBody  int64
	now      func() time.Time
}

func NewAgentHandlers(pipeline Pipeline, c *chart.Chart, journal *events.Journal) *AgentHandlers {
	return &AgentHandlers{
		pipeline: pipeline,
		chart:    c,
		journal:  journal,
		maxBody:  50 << 20,
		now:      time.Now,
	}
}

func (h *AgentHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/recordings", h.handleRecordings)
	mux.HandleFunc("/api/v1/queue", h.handleQueue)
	mux.HandleFunc("/api/v1/queue/retry", h.handleRetry)
	mux.HandleFunc("/api/v1/status", h.handleStatus)
	mux.HandleFunc("/api/v1/chart", h.handleChart)
	mux.HandleFunc("/api/v1/chart/export", h.handleChartExport)
	mux.HandleFunc("/api/v1/notices", h.handleNotices)
}

func (h *AgentHandlers) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	duration, err := parseDuration(r.URL.Query().Get("duration"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration; expected seconds")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	rec, err := capture.FromReader(body, r.Header.Get("Content-Type"), duration, h.now())
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "recording too large")
		case errors.Is(err, capture.ErrNoAudio):
			h.pipeline.CaptureFailed(err)
			writeJSON(w, http.StatusBadRequest, worker.Delivery{Outcome: worker.OutcomeRejected, Message: err.Error()})
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	delivery := h.pipeline.Submit(r.Context(), rec)
	switch delivery.Outcome {
	case worker.OutcomeDelivered:
		writeJSON(w, http.StatusOK, delivery)
	case worker.OutcomeQueued:
		writeJSON(w, http.StatusAccepted, delivery)
	default:
		writeJSON(w, http.StatusBadRequest, delivery)
	}
}

func (h *AgentHandlers) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	items := h.pipeline.Pending()
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *AgentHandlers) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := h.pipeline.RetryNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report.Skipped {
		writeJSON(w, http.StatusConflict, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AgentHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  h.pipeline.Status(),
		"offline": h.pipeline.Offline(),
		"queued":  len(h.pipeline.Pending()),
	})
}

func (h *AgentHandlers) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"teeth":  h.chart.Snapshot(),
		"counts": h.chart.Counts(),
	})
}

func (h *AgentHandlers) handleChartExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := h.now()
	var buf bytes.Buffer
	if err := export.WriteChart(&buf, h.chart.Snapshot(), now); err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(now)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *AgentHandlers) handleNotices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	var notices []events.Event
	if h.journal != nil {
		notices = h.journal.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
}

// parseDuration reads whole or fractional seconds.
func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return 0, errors.New("invalid duration")
	}
	return time.Duration(secs * float64(time.Second)), nil
}
