package relay

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"dentalvoice/internal/config"
	"dentalvoice/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type webhook struct {
	mu       sync.Mutex
	status   int
	body     string
	received []map[string]any
	server   *httptest.Server
}

func newWebhook(t *testing.T, status int, body string) *webhook {
	t.Helper()
	wh := &webhook{status: status, body: body}
	wh.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		wh.mu.Lock()
		wh.received = append(wh.received, payload)
		wh.mu.Unlock()
		w.WriteHeader(wh.status)
		_, _ = io.WriteString(w, wh.body)
	}))
	t.Cleanup(wh.server.Close)
	return wh
}

func (wh *webhook) last(t *testing.T) map[string]any {
	t.Helper()
	wh.mu.Lock()
	defer wh.mu.Unlock()
	require.NotEmpty(t, wh.received)
	return wh.received[len(wh.received)-1]
}

func newTestHandler(t *testing.T, url string) *Handler {
	t.Helper()
	fwd, err := NewForwarder(config.RelayConfig{WebhookURL: url, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	h := NewHandler(fwd, 1<<20, nil)
	h.now = func() time.Time { return fixedNow }
	return h
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func audioB64() (string, []byte) {
	raw := []byte(gofakeit.LetterN(48))
	return base64.StdEncoding.EncodeToString(raw), raw
}

func TestJSONRequestIsForwarded(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{"output":{"transcript":"tooth 3 crown"}}`)
	h := newTestHandler(t, wh.server.URL)
	b64, _ := audioB64()

	body := `{"audioData":"data:audio/ogg;base64,` + b64 + `","mimeType":"audio/ogg","duration":7,"meta":{"patient":"p-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"output":{"transcript":"tooth 3 crown"}}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	got := wh.last(t)
	assert.Equal(t, b64, got["audioData"])
	assert.Equal(t, "audio/ogg", got["mimeType"])
	assert.Equal(t, "recording_1719835200000.ogg", got["fileName"])
	assert.Equal(t, "2024-07-01T12:00:00.000Z", got["timestamp"])
	assert.EqualValues(t, 7, got["duration"])
	assert.Equal(t, models.RelaySource, got["source"])
	assert.Equal(t, models.RecordingType, got["type"])
	assert.Equal(t, map[string]any{"patient": "p-1"}, got["meta"])
	assert.NotContains(t, got, "extension")
}

func TestRawBodyIsTreatedAsBase64(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{}`)
	h := newTestHandler(t, wh.server.URL)
	b64, _ := audioB64()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", strings.NewReader(b64))
	req.Header.Set("Content-Type", "text/plain")

	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got := wh.last(t)
	assert.Equal(t, b64, got["audioData"])
	assert.Equal(t, models.DefaultMimeType, got["mimeType"])
	assert.Nil(t, got["meta"])
}

func TestRawBodyLooksLikeJSON(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{}`)
	h := newTestHandler(t, wh.server.URL)
	b64, _ := audioB64()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", strings.NewReader(`{"audioData":"`+b64+`","type":"note"}`))
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "note", wh.last(t)["type"])
}

func TestMultipartFile(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{"ok":true}`)
	h := newTestHandler(t, wh.server.URL)
	_, raw := audioB64()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="file"; filename="visit.mp3"`)
	partHeader.Set("Content-Type", "audio/mpeg")
	part, err := mw.CreatePart(partHeader)
	require.NoError(t, err)
	_, _ = part.Write(raw)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got := wh.last(t)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), got["audioData"])
	assert.Equal(t, "audio/mpeg", got["mimeType"])
	assert.Equal(t, "visit.mp3", got["fileName"])
}

func TestMultipartField(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{}`)
	h := newTestHandler(t, wh.server.URL)
	b64, _ := audioB64()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("audioData", "data:audio/webm;base64,"+b64))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, b64, wh.last(t)["audioData"])
}

func TestRejectedRequests(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{}`)
	h := newTestHandler(t, wh.server.URL)

	emptyForm := func() (io.Reader, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("note", "nothing here")
		_ = mw.Close()
		return &buf, mw.FormDataContentType()
	}

	formBody, formType := emptyForm()
	tests := []struct {
		name        string
		body        io.Reader
		contentType string
		wantStatus  int
		wantError   string
	}{
		{"InvalidJSON", strings.NewReader(`{"audioData":`), "application/json", http.StatusBadRequest, "Invalid JSON"},
		{"MissingAudio", strings.NewReader(`{"mimeType":"audio/ogg"}`), "application/json", http.StatusBadRequest, "No audio data provided"},
		{"AudioNotString", strings.NewReader(`{"audioData":42}`), "application/json", http.StatusBadRequest, "No audio data provided"},
		{"EmptyRaw", strings.NewReader(""), "", http.StatusBadRequest, "No audio data provided"},
		{"NotBase64", strings.NewReader(`{"audioData":"%%%"}`), "application/json", http.StatusBadRequest, ""},
		{"EmptyForm", formBody, formType, http.StatusBadRequest, "No audio found in form data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", tt.body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := serve(h, req)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp models.RelayError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			} else {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}

	wh.mu.Lock()
	defer wh.mu.Unlock()
	assert.Empty(t, wh.received)
}

func TestBodyTooLarge(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{}`)
	h := newTestHandler(t, wh.server.URL)
	h.maxBodyBytes = 16

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", strings.NewReader(strings.Repeat("A", 64)))
	rec := serve(h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhookErrorIsMirrored(t *testing.T) {
	wh := newWebhook(t, http.StatusBadGateway, "workflow offline")
	h := newTestHandler(t, wh.server.URL)
	b64, _ := audioB64()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", strings.NewReader(`{"audioData":"`+b64+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp models.RelayError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Webhook responded with 502", resp.Error)
	assert.Equal(t, "workflow offline", resp.Details)
}

func TestNonJSONSuccessBecomesEmptyObject(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, "Workflow was started")
	h := newTestHandler(t, wh.server.URL)
	b64, _ := audioB64()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", strings.NewReader(`{"audioData":"`+b64+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestUnreachableWebhook(t *testing.T) {
	wh := newWebhook(t, http.StatusOK, `{}`)
	url := wh.server.URL
	wh.server.Close()

	h := newTestHandler(t, url)
	b64, _ := audioB64()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/voice", strings.NewReader(`{"audioData":"`+b64+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp models.RelayError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, failureDetails, resp.Details)
	assert.NotEmpty(t, resp.Error)
}

func TestPreflightAndMethods(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1")

	rec := serve(h, httptest.NewRequest(http.MethodOptions, "/api/v1/voice", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/voice", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewForwarderRequiresURL(t *testing.T) {
	_, err := NewForwarder(config.RelayConfig{}, nil)
	assert.Error(t, err)
}
