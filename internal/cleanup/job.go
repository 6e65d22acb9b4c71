// Package cleanup provides snapshot-based cleanup jobs for removing expired
// cache entries, old backup archives and rotated log files.
//
// A job captures the resources to remove when it is created and persists
// them to disk. Executing the job touches only what was captured, so
// anything written after the snapshot is left alone even when the job runs
// later in a detached background process.
package cleanup

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// JobsDir is the directory name within the data directory that contains
// cleanup job files
const JobsDir = "cleanup-jobs"

// JobStatus represents the current state of a cleanup job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// StaleBackup is a backup archive marked for removal at snapshot time
type StaleBackup struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	SizeMB    float64   `json:"size_mb"`
}

// StaleLog is a rotated log file marked for removal at snapshot time
type StaleLog struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Job represents a cleanup job with its snapshotted resources
type Job struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Status    JobStatus `json:"status"`

	// DataDir is the devcrew data directory; job files live beneath it.
	DataDir string `json:"data_dir"`
	Policy  Policy `json:"policy"`

	// Snapshotted resources (captured at job creation time)
	ExpiredCacheKeys []string      `json:"expired_cache_keys"`
	StaleBackups     []StaleBackup `json:"stale_backups"`
	StaleLogs        []StaleLog    `json:"stale_logs"`

	// Results
	Results *JobResults `json:"results,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// JobResults contains the outcome of a cleanup job
type JobResults struct {
	CacheEntriesRemoved int      `json:"cache_entries_removed"`
	BackupsRemoved      int      `json:"backups_removed"`
	LogsRemoved         int      `json:"logs_removed"`
	TotalRemoved        int      `json:"total_removed"`
	Errors              []string `json:"errors,omitempty"`
}

// NewJob creates a new cleanup job with a unique ID
func NewJob(dataDir string) *Job {
	return &Job{
		ID:        generateID(),
		CreatedAt: time.Now(),
		Status:    JobStatusPending,
		DataDir:   dataDir,
	}
}

// Pending returns the number of snapshotted resources.
func (j *Job) Pending() int {
	return len(j.ExpiredCacheKeys) + len(j.StaleBackups) + len(j.StaleLogs)
}

// generateID creates a short random hex ID.
// Falls back to timestamp-based ID if random generation fails.
func generateID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}
	return hex.EncodeToString(b)
}

// GetJobsDir returns the path to the cleanup jobs directory
func GetJobsDir(dataDir string) string {
	return filepath.Join(dataDir, JobsDir)
}

// GetJobPath returns the path to a specific job file
func GetJobPath(dataDir, jobID string) string {
	return filepath.Join(GetJobsDir(dataDir), jobID+".json")
}

// Save persists the job to disk
func (j *Job) Save() error {
	jobsDir := GetJobsDir(j.DataDir)
	if err := os.MkdirAll(jobsDir, 0755); err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := os.WriteFile(GetJobPath(j.DataDir, j.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write job file: %w", err)
	}
	return nil
}

// LoadJob reads a job from disk
func LoadJob(dataDir, jobID string) (*Job, error) {
	data, err := os.ReadFile(GetJobPath(dataDir, jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	return &job, nil
}

// ListJobs returns all cleanup jobs, oldest first
func ListJobs(dataDir string) ([]*Job, error) {
	entries, err := os.ReadDir(GetJobsDir(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var jobs []*Job
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		job, err := LoadJob(dataDir, entry.Name()[:len(entry.Name())-len(".json")])
		if err != nil {
			continue // unreadable job files are ignored
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// RemoveJobFile removes the job file from disk
func RemoveJobFile(dataDir, jobID string) error {
	return os.Remove(GetJobPath(dataDir, jobID))
}

// CleanupOldJobs removes finished job files older than the given duration
func CleanupOldJobs(dataDir string, maxAge time.Duration) (int, error) {
	jobs, err := ListJobs(dataDir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, job := range jobs {
		if !job.isFinished() {
			continue
		}
		endTime := job.EndedAt
		if endTime.IsZero() {
			endTime = job.CreatedAt
		}
		if endTime.Before(cutoff) {
			if err := RemoveJobFile(dataDir, job.ID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// isFinished returns true if the job has reached a terminal state
func (j *Job) isFinished() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
