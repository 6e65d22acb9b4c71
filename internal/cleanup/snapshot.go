package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/devcrew/internal/backup"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// Policy holds the age limits for each kind of resource. A non-positive
// age leaves that kind untouched.
type Policy struct {
	CacheMaxAge  time.Duration `json:"cache_max_age"`
	BackupMaxAge time.Duration `json:"backup_max_age"`
	LogMaxAge    time.Duration `json:"log_max_age"`
}

// CacheTarget is the part of the analysis cache a job needs.
type CacheTarget interface {
	Expired(maxAge time.Duration) ([]string, error)
	RemoveUnchangedSince(ctx context.Context, since time.Time, keys ...string) (int, error)
}

// BackupTarget is the part of the backup manager a job needs.
type BackupTarget interface {
	Stale(maxAge time.Duration) ([]backup.Record, error)
	Remove(id string) error
}

// Targets are the stores a job snapshots and cleans. Nil targets are
// skipped when snapshotting.
type Targets struct {
	Cache   CacheTarget
	Backups BackupTarget
	// LogDir holds debug.log and its rotations.
	LogDir string
}

// Snapshot creates a pending job listing every resource that policy
// marks for removal. The job is not saved.
func Snapshot(dataDir string, targets Targets, policy Policy) (*Job, error) {
	job := NewJob(dataDir)
	job.Policy = policy

	if targets.Cache != nil && policy.CacheMaxAge > 0 {
		keys, err := targets.Cache.Expired(policy.CacheMaxAge)
		if err != nil {
			return nil, fmt.Errorf("failed to list expired cache entries: %w", err)
		}
		job.ExpiredCacheKeys = keys
	}

	if targets.Backups != nil && policy.BackupMaxAge > 0 {
		records, err := targets.Backups.Stale(policy.BackupMaxAge)
		if err != nil {
			return nil, fmt.Errorf("failed to list old backups: %w", err)
		}
		for _, r := range records {
			job.StaleBackups = append(job.StaleBackups, StaleBackup{
				ID:        r.ID,
				Path:      r.FilePath,
				CreatedAt: r.Timestamp,
				SizeMB:    r.SizeMB,
			})
		}
	}

	if targets.LogDir != "" && policy.LogMaxAge > 0 {
		files, err := logging.RotatedFiles(targets.LogDir)
		if err != nil {
			return nil, err
		}
		cutoff := job.CreatedAt.Add(-policy.LogMaxAge)
		for _, f := range files {
			if f.ModTime.Before(cutoff) {
				job.StaleLogs = append(job.StaleLogs, StaleLog{Path: f.Path, Size: f.Size, ModTime: f.ModTime})
			}
		}
	}

	return job, nil
}
