// Package chart keeps the per-tooth state that relay results are applied to.
package chart

import (
	"sort"
	"sync"
	"time"

	"dentalvoice/internal/models"
)

// Tooth is the current state of one tooth on the chart.
type Tooth struct {
	Number     int       `json:"toothNumber"`
	Condition  string    `json:"condition"`
	Confidence *float64  `json:"confidence,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// ApplyReport counts what a relay result changed.
type ApplyReport struct {
	Applied int      `json:"applied"`
	Ignored []string `json:"ignored,omitempty"`
}

type Chart struct {
	mu    sync.RWMutex
	teeth map[int]Tooth
	now   func() time.Time
}

// New returns a chart with every tooth healthy.
func New() *Chart {
	c := &Chart{now: time.Now}
	c.Reset()
	return c
}

func (c *Chart) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teeth = make(map[int]Tooth, models.MaxTooth)
	for n := models.MinTooth; n <= models.MaxTooth; n++ {
		c.teeth[n] = Tooth{Number: n, Condition: models.ConditionHealthy}
	}
}

// ApplyResult copies findings and tooth statuses onto the chart. Entries
// with an unknown tooth number or condition are reported and skipped.
// Findings are applied after teethStatus so their notes win.
func (c *Chart) ApplyResult(result *models.RelayResult) ApplyReport {
	var report ApplyReport
	if result == nil {
		return report
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	for _, ts := range result.TeethStatus {
		if reason := invalid(ts.ToothNumber, ts.Condition); reason != "" {
			report.Ignored = append(report.Ignored, reason)
			continue
		}
		c.teeth[ts.ToothNumber] = Tooth{Number: ts.ToothNumber, Condition: ts.Condition, UpdatedAt: now}
		report.Applied++
	}

	for _, f := range result.Findings {
		if reason := invalid(f.ToothNumber, f.Condition); reason != "" {
			report.Ignored = append(report.Ignored, reason)
			continue
		}
		c.teeth[f.ToothNumber] = Tooth{
			Number:     f.ToothNumber,
			Condition:  f.Condition,
			Confidence: f.Confidence,
			Notes:      f.Notes,
			UpdatedAt:  now,
		}
		report.Applied++
	}
	return report
}

// Set records a manual edit.
func (c *Chart) Set(number int, condition, notes string) error {
	if reason := invalid(number, condition); reason != "" {
		return &InvalidEntryError{Reason: reason}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teeth[number] = Tooth{Number: number, Condition: condition, Notes: notes, UpdatedAt: c.now()}
	return nil
}

func (c *Chart) Tooth(number int) (Tooth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.teeth[number]
	return t, ok
}

// Snapshot returns every tooth ordered by number.
func (c *Chart) Snapshot() []Tooth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tooth, 0, len(c.teeth))
	for _, t := range c.teeth {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Counts tallies teeth per condition.
func (c *Chart) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int)
	for _, t := range c.teeth {
		counts[t.Condition]++
	}
	return counts
}
