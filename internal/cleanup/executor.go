package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// Executor runs cleanup jobs using their snapshotted resources
type Executor struct {
	job     *Job
	targets Targets
	logger  *logging.Logger
}

// NewExecutor creates a new executor for the given job. Every kind of
// resource present in the snapshot needs a matching target.
func NewExecutor(job *Job, targets Targets, logger *logging.Logger) (*Executor, error) {
	if len(job.ExpiredCacheKeys) > 0 && targets.Cache == nil {
		return nil, fmt.Errorf("job %s lists cache entries but no cache is configured", job.ID)
	}
	if len(job.StaleBackups) > 0 && targets.Backups == nil {
		return nil, fmt.Errorf("job %s lists backups but no backup manager is configured", job.ID)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{
		job:     job,
		targets: targets,
		logger:  logger.WithComponent("cleanup").With("job_id", job.ID),
	}, nil
}

// Execute runs the cleanup job using ONLY the snapshotted resources.
// This ensures that resources created after the snapshot are not affected.
func (e *Executor) Execute(ctx context.Context) error {
	job := e.job

	job.Status = JobStatusRunning
	job.StartedAt = time.Now()
	if err := job.Save(); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	results := &JobResults{}
	var errs []string

	removed, cacheErrs := e.cleanCache(ctx)
	results.CacheEntriesRemoved = removed
	errs = append(errs, cacheErrs...)

	removed, backupErrs := e.cleanBackups(ctx)
	results.BackupsRemoved = removed
	errs = append(errs, backupErrs...)

	removed, logErrs := e.cleanLogs(ctx)
	results.LogsRemoved = removed
	errs = append(errs, logErrs...)

	results.TotalRemoved = results.CacheEntriesRemoved + results.BackupsRemoved + results.LogsRemoved
	results.Errors = errs

	job.Results = results
	job.Status = JobStatusCompleted
	job.EndedAt = time.Now()

	switch {
	case ctx.Err() != nil:
		job.Status = JobStatusCancelled
		job.Error = ctx.Err().Error()
	case len(errs) > 0 && results.TotalRemoved == 0:
		job.Status = JobStatusFailed
		job.Error = fmt.Sprintf("all operations failed: %d errors", len(errs))
	}

	e.logger.Info("cleanup job finished",
		"status", string(job.Status),
		"cache_entries", results.CacheEntriesRemoved,
		"backups", results.BackupsRemoved,
		"logs", results.LogsRemoved,
		"errors", len(errs),
	)

	if err := job.Save(); err != nil {
		return fmt.Errorf("failed to save job results: %w", err)
	}
	return nil
}

// cleanCache removes the snapshotted cache keys in one batch. Keys reused by
// an entry written after the snapshot are kept.
func (e *Executor) cleanCache(ctx context.Context) (int, []string) {
	keys := e.job.ExpiredCacheKeys
	if len(keys) == 0 {
		return 0, nil
	}
	removed, err := e.targets.Cache.RemoveUnchangedSince(ctx, e.job.CreatedAt, keys...)
	if err != nil {
		return 0, []string{fmt.Sprintf("failed to remove %d cache entries: %v", len(keys), err)}
	}
	return removed, nil
}

// cleanBackups removes the snapshotted archives and their records
func (e *Executor) cleanBackups(ctx context.Context) (int, []string) {
	var removed int
	var errs []string

	for _, b := range e.job.StaleBackups {
		if ctx.Err() != nil {
			break
		}
		if err := e.targets.Backups.Remove(b.ID); err != nil {
			if errors.Is(err, errors.ErrBackupNotFound) {
				continue // already gone
			}
			errs = append(errs, fmt.Sprintf("failed to remove backup %s: %v", b.ID, err))
			continue
		}
		removed++
	}
	return removed, errs
}

// cleanLogs deletes the snapshotted rotated log files
func (e *Executor) cleanLogs(ctx context.Context) (int, []string) {
	var removed int
	var errs []string

	for _, l := range e.job.StaleLogs {
		if ctx.Err() != nil {
			break
		}
		if err := os.Remove(l.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, fmt.Sprintf("failed to remove log %s: %v", filepath.Base(l.Path), err))
			continue
		}
		removed++
	}
	return removed, errs
}
