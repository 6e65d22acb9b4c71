package cache

import (
	"maps"
	"time"
)

// Mode describes where an analysis result came from.
type Mode string

const (
	// ModeFull means the analysis was computed from scratch.
	ModeFull Mode = "full"
	// ModeCached means the result matched the current project hash.
	ModeCached Mode = "cached"
	// ModeDifferential means the result was computed for an earlier version
	// of the project and is passed through unchanged.
	ModeDifferential Mode = "differential"
)

// Result annotation keys.
const (
	ModeKey           = "analysis_mode"
	OldProjectHashKey = "old_project_hash"
	NewProjectHashKey = "new_project_hash"
)

// Entry is a single cached analysis result.
type Entry struct {
	Key         string         `json:"key"`
	ProjectHash string         `json:"project_hash"`
	Operation   string         `json:"operation"`
	Timestamp   time.Time      `json:"timestamp"`
	Result      map[string]any `json:"analysis_result"`
	// ExecutionTime is the time the analysis took, in seconds.
	ExecutionTime float64 `json:"execution_time"`
}

// Age returns how old the entry is at now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Record returns the index row describing the entry.
func (e *Entry) Record() IndexRecord {
	return IndexRecord{
		Operation:     e.Operation,
		Timestamp:     e.Timestamp,
		ExecutionTime: e.ExecutionTime,
		ProjectHash:   e.ProjectHash,
	}
}

// IndexRecord is the per-key metadata kept in the cache index.
type IndexRecord struct {
	Operation     string    `json:"operation"`
	Timestamp     time.Time `json:"timestamp"`
	ExecutionTime float64   `json:"execution_time"`
	ProjectHash   string    `json:"project_hash,omitempty"`
}

// Index maps cache keys to their metadata.
type Index map[string]IndexRecord

// Lookup is the outcome of GetOrDifferential.
type Lookup struct {
	Entry          *Entry
	Mode           Mode
	OldProjectHash string
	NewProjectHash string
}

// Result returns a copy of the cached result annotated with the lookup mode.
// Differential lookups also carry the old and new project hashes.
func (l *Lookup) Result() map[string]any {
	out := make(map[string]any, len(l.Entry.Result)+3)
	maps.Copy(out, l.Entry.Result)
	out[ModeKey] = string(l.Mode)
	if l.Mode == ModeDifferential {
		out[OldProjectHashKey] = l.OldProjectHash
		out[NewProjectHashKey] = l.NewProjectHash
	}
	return out
}
