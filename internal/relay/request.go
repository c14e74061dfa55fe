package relay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"dentalvoice/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/tidwall/gjson"
)

// RequestError is a client error with the status it should be answered with.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func badRequest(msg string) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: msg}
}

// timestampLayout matches what browsers produce for toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ParseRequest reads a voice upload in any of the accepted encodings and
// fills in defaults for the webhook payload.
func ParseRequest(r *http.Request, maxBytes int64, now time.Time) (*models.RelayRequest, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	}

	ct := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	var (
		req *models.RelayRequest
		err error
	)
	switch {
	case mediaType == "multipart/form-data":
		req, err = parseMultipart(r, maxBytes, now)
	case strings.Contains(ct, "application/json"):
		req, err = parseJSONBody(r.Body, false, now)
	default:
		req, err = parseJSONBody(r.Body, true, now)
	}
	if err != nil {
		return nil, err
	}

	req.AudioData = models.StripDataURL(strings.TrimSpace(req.AudioData))
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	applyDefaults(req, now)
	return req, nil
}

func parseJSONBody(body io.Reader, fallback bool, now time.Time) (*models.RelayRequest, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, readError(err)
	}

	text := strings.TrimSpace(string(raw))
	if fallback && !(strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}")) {
		// anything that is not JSON is taken as raw base64 audio
		return &models.RelayRequest{
			AudioData: text,
			MimeType:  models.DefaultMimeType,
			Extension: "webm",
			FileName:  defaultFileName(now, "webm"),
		}, nil
	}

	if text == "" {
		text = "{}"
	}
	if !gjson.Valid(text) {
		return nil, badRequest("Invalid JSON")
	}
	doc := gjson.Parse(text)
	if !doc.IsObject() {
		return nil, badRequest("Invalid JSON")
	}

	req := &models.RelayRequest{
		MimeType:  doc.Get("mimeType").String(),
		Extension: doc.Get("extension").String(),
		FileName:  doc.Get("fileName").String(),
		Timestamp: doc.Get("timestamp").String(),
		Duration:  int(doc.Get("duration").Int()),
		Type:      doc.Get("type").String(),
	}
	if audio := doc.Get("audioData"); audio.Type == gjson.String {
		req.AudioData = audio.Str
	}
	if meta := doc.Get("meta"); meta.IsObject() {
		if err := json.Unmarshal([]byte(meta.Raw), &req.Meta); err != nil {
			return nil, badRequest("Invalid JSON")
		}
	}
	return req, nil
}

func parseMultipart(r *http.Request, maxBytes int64, now time.Time) (*models.RelayRequest, error) {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, readError(err)
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, readError(err)
		}
		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = models.DefaultMimeType
		}
		ext := models.ExtensionForMime(mimeType)
		name := header.Filename
		if name == "" {
			name = defaultFileName(now, ext)
		}
		return &models.RelayRequest{
			AudioData: base64.StdEncoding.EncodeToString(data),
			MimeType:  mimeType,
			Extension: ext,
			FileName:  name,
		}, nil
	}

	if field := r.FormValue("audioData"); field != "" {
		return &models.RelayRequest{
			AudioData: field,
			MimeType:  models.DefaultMimeType,
			Extension: "webm",
			FileName:  defaultFileName(now, "webm"),
		}, nil
	}
	return nil, badRequest("No audio found in form data")
}

func validateRequest(req *models.RelayRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.AudioData, validation.Required.Error("No audio data provided"), is.Base64),
		validation.Field(&req.Duration, validation.Min(0)),
	)
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		if fieldErr, ok := errs["audioData"]; ok {
			return badRequest(fieldErr.Error())
		}
	}
	return badRequest(err.Error())
}

func applyDefaults(req *models.RelayRequest, now time.Time) {
	if req.MimeType == "" {
		req.MimeType = models.DefaultMimeType
	}
	if req.Extension == "" {
		req.Extension = models.ExtensionForMime(req.MimeType)
	}
	if req.FileName == "" {
		req.FileName = defaultFileName(now, req.Extension)
	}
	if req.Timestamp == "" {
		req.Timestamp = now.UTC().Format(timestampLayout)
	}
	if req.Type == "" {
		req.Type = models.RecordingType
	}
	req.Source = models.RelaySource
}

func defaultFileName(now time.Time, ext string) string {
	return fmt.Sprintf("recording_%d.%s", now.UnixMilli(), ext)
}

func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	}
	return badRequest("could not read request body")
}
