package transport

import (
	"encoding/json"
	"errors"

	"dentalvoice/internal/models"

	"github.com/tidwall/gjson"
)

var errMalformed = errors.New("malformed relay response")

// Normalize turns a relay response body into a RelayResult. The payload may be
// nested under "output" and either level may be wrapped in a one-element array.
func Normalize(body []byte) (*models.RelayResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformed
	}

	root := unwrapArray(gjson.ParseBytes(body))
	if !root.IsObject() {
		return nil, errMalformed
	}

	payload := root
	if out := unwrapArray(root.Get("output")); out.IsObject() {
		payload = out
	}

	result := &models.RelayResult{
		Transcript: payload.Get("transcript").String(),
		Summary:    payload.Get("summary").String(),
		Raw:        json.RawMessage(append([]byte(nil), body...)),
	}

	payload.Get("findings").ForEach(func(_, f gjson.Result) bool {
		if !f.IsObject() {
			return true
		}
		finding := models.Finding{
			ToothNumber: int(f.Get("toothNumber").Int()),
			Condition:   f.Get("condition").String(),
			Notes:       f.Get("notes").String(),
		}
		if c := f.Get("confidence"); c.Type == gjson.Number {
			v := c.Float()
			finding.Confidence = &v
		}
		result.Findings = append(result.Findings, finding)
		return true
	})

	payload.Get("teethStatus").ForEach(func(_, t gjson.Result) bool {
		switch {
		case t.IsArray():
			pair := t.Array()
			if len(pair) >= 2 {
				result.TeethStatus = append(result.TeethStatus, models.ToothStatus{
					ToothNumber: int(pair[0].Int()),
					Condition:   pair[1].String(),
				})
			}
		case t.IsObject():
			result.TeethStatus = append(result.TeethStatus, models.ToothStatus{
				ToothNumber: int(t.Get("toothNumber").Int()),
				Condition:   t.Get("condition").String(),
			})
		}
		return true
	})

	return result, nil
}

func unwrapArray(r gjson.Result) gjson.Result {
	if r.IsArray() {
		items := r.Array()
		if len(items) == 0 {
			return gjson.Result{}
		}
		return items[0]
	}
	return r
}

// errorMessage extracts "error: details" from a relay error body, if any.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	parsed := gjson.ParseBytes(body)
	msg := parsed.Get("error").String()
	if details := parsed.Get("details").String(); details != "" {
		if msg == "" {
			return details
		}
		msg += ": " + details
	}
	return msg
}
