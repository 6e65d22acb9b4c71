package errhandler

import (
	"time"
)

// Record is one line of the error log.
type Record struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  string         `json:"severity"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Operation string         `json:"operation,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Retryable bool           `json:"retryable"`
	Recovered bool           `json:"recovered"`
	// Recovery describes the recovery attempted, if any.
	Recovery string `json:"recovery,omitempty"`
	// Duplicate is set on records returned for errors suppressed by the
	// dedup window. It is never written to the log.
	Duplicate bool `json:"-"`
}
