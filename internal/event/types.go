package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypePhaseChanged  = "team.phase_changed"
	TypeTaskCompleted = "team.task_completed"
	TypeVoteTallied   = "team.vote_tallied"
	TypeTeamFinished  = "team.finished"

	TypeCacheHit     = "cache.hit"
	TypeCacheMiss    = "cache.miss"
	TypeCacheEvicted = "cache.evicted"

	TypeBackupCreated = "backup.created"

	TypeErrorHandled = "error.handled"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Team Events
// -----------------------------------------------------------------------------

// PhaseChangedEvent is emitted when the team workflow moves between phases.
type PhaseChangedEvent struct {
	baseEvent
	RunID     string
	Iteration int
	From      string
	To        string
}

// NewPhaseChangedEvent creates a PhaseChangedEvent.
func NewPhaseChangedEvent(runID string, iteration int, from, to string) PhaseChangedEvent {
	return PhaseChangedEvent{
		baseEvent: newBaseEvent(TypePhaseChanged),
		RunID:     runID,
		Iteration: iteration,
		From:      from,
		To:        to,
	}
}

// TaskCompletedEvent is emitted when one role finishes its task.
type TaskCompletedEvent struct {
	baseEvent
	RunID    string
	TaskID   string
	Role     string
	Success  bool
	Duration time.Duration
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(runID, taskID, role string, success bool, duration time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent(TypeTaskCompleted),
		RunID:     runID,
		TaskID:    taskID,
		Role:      role,
		Success:   success,
		Duration:  duration,
	}
}

// VoteTalliedEvent is emitted after every vote.
type VoteTalliedEvent struct {
	baseEvent
	RunID     string
	Iteration int
	Approvals int
	Voters    int
	Passed    bool
}

// NewVoteTalliedEvent creates a VoteTalliedEvent.
func NewVoteTalliedEvent(runID string, iteration, approvals, voters int, passed bool) VoteTalliedEvent {
	return VoteTalliedEvent{
		baseEvent: newBaseEvent(TypeVoteTallied),
		RunID:     runID,
		Iteration: iteration,
		Approvals: approvals,
		Voters:    voters,
		Passed:    passed,
	}
}

// TeamFinishedEvent is emitted once per workflow run.
type TeamFinishedEvent struct {
	baseEvent
	RunID      string
	Objective  string
	Success    bool
	Iterations int
}

// NewTeamFinishedEvent creates a TeamFinishedEvent.
func NewTeamFinishedEvent(runID, objective string, success bool, iterations int) TeamFinishedEvent {
	return TeamFinishedEvent{
		baseEvent:  newBaseEvent(TypeTeamFinished),
		RunID:      runID,
		Objective:  objective,
		Success:    success,
		Iterations: iterations,
	}
}

// -----------------------------------------------------------------------------
// Cache Events
// -----------------------------------------------------------------------------

// CacheLookupEvent is emitted for every cache lookup. Its EventType is
// either TypeCacheHit or TypeCacheMiss.
type CacheLookupEvent struct {
	baseEvent
	Key       string
	Operation string
	Mode      string // "cached", "differential" or "" for misses
}

// NewCacheHitEvent creates a hit CacheLookupEvent.
func NewCacheHitEvent(key, operation, mode string) CacheLookupEvent {
	return CacheLookupEvent{
		baseEvent: newBaseEvent(TypeCacheHit),
		Key:       key,
		Operation: operation,
		Mode:      mode,
	}
}

// NewCacheMissEvent creates a miss CacheLookupEvent.
func NewCacheMissEvent(key, operation string) CacheLookupEvent {
	return CacheLookupEvent{
		baseEvent: newBaseEvent(TypeCacheMiss),
		Key:       key,
		Operation: operation,
	}
}

// CacheEvictedEvent is emitted when entries are removed for age.
type CacheEvictedEvent struct {
	baseEvent
	Keys   []string
	Reason string
}

// NewCacheEvictedEvent creates a CacheEvictedEvent.
func NewCacheEvictedEvent(keys []string, reason string) CacheEvictedEvent {
	return CacheEvictedEvent{
		baseEvent: newBaseEvent(TypeCacheEvicted),
		Keys:      keys,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Backup / Error Events
// -----------------------------------------------------------------------------

// BackupCreatedEvent is emitted after a backup archive has been written.
type BackupCreatedEvent struct {
	baseEvent
	BackupID   string
	BackupType string
	Path       string
	SizeMB     float64
}

// NewBackupCreatedEvent creates a BackupCreatedEvent.
func NewBackupCreatedEvent(id, backupType, path string, sizeMB float64) BackupCreatedEvent {
	return BackupCreatedEvent{
		baseEvent:  newBaseEvent(TypeBackupCreated),
		BackupID:   id,
		BackupType: backupType,
		Path:       path,
		SizeMB:     sizeMB,
	}
}

// ErrorHandledEvent is emitted by the error handler for every recorded error.
type ErrorHandledEvent struct {
	baseEvent
	RecordID  string
	Severity  string
	Category  string
	Recovered bool
}

// NewErrorHandledEvent creates an ErrorHandledEvent.
func NewErrorHandledEvent(recordID, severity, category string, recovered bool) ErrorHandledEvent {
	return ErrorHandledEvent{
		baseEvent: newBaseEvent(TypeErrorHandled),
		RecordID:  recordID,
		Severity:  severity,
		Category:  category,
		Recovered: recovered,
	}
}
