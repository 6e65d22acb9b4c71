package diagnose

import (
	"time"
)

// Step names, in report order.
const (
	StepFolders      = "folders"
	StepImports      = "imports"
	StepCoverage     = "coverage"
	StepDependencies = "dependencies"
	StepMemory       = "memory"
	StepTests        = "tests"
)

// Status is the outcome of a single step.
type Status string

const (
	// StatusPass means the step found nothing to fix.
	StatusPass Status = "pass"
	// StatusWarn flags something worth a look that does not fail the run.
	StatusWarn Status = "warn"
	// StatusFail fails the run.
	StatusFail Status = "fail"
	// StatusSkip means the step had nothing to inspect.
	StatusSkip Status = "skip"
)

// Symbol returns a single-character marker for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "!"
	case StatusFail:
		return "✗"
	default:
		return "-"
	}
}

// StepResult is the outcome of one check.
type StepResult struct {
	Name       string         `json:"name" yaml:"name"`
	Title      string         `json:"title" yaml:"title"`
	Status     Status         `json:"status" yaml:"status"`
	Message    string         `json:"message" yaml:"message"`
	Details    map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	DurationMS int64          `json:"duration_ms" yaml:"duration_ms"`
}

// Failed reports whether the step failed.
func (r StepResult) Failed() bool {
	return r.Status == StatusFail
}

// Report is the outcome of a diagnosis run.
type Report struct {
	RunID      string       `json:"run_id" yaml:"run_id"`
	Root       string       `json:"root" yaml:"root"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	Steps      []StepResult `json:"steps" yaml:"steps"`
	Passed     bool         `json:"passed" yaml:"passed"`
}

// Failed returns the failed steps in report order.
func (r *Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the result for name.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
