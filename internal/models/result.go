package models

import "encoding/json"

// Finding is a single parsed observation for one tooth.
type Finding struct {
	ToothNumber int      `json:"toothNumber"`
	Condition   string   `json:"condition"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// ToothStatus is a [toothNumber, condition] pair from the relay response.
type ToothStatus struct {
	ToothNumber int    `json:"toothNumber"`
	Condition   string `json:"condition"`
}

// RelayResult is the normalized relay response.
type RelayResult struct {
	Transcript  string          `json:"transcript,omitempty"`
	Findings    []Finding       `json:"findings,omitempty"`
	TeethStatus []ToothStatus   `json:"teethStatus,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Raw         json.RawMessage `json:"-"`
}
