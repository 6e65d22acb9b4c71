package cleanup

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestGetExecutablePath(t *testing.T) {
	path, err := GetExecutablePath()
	if err != nil {
		t.Fatalf("GetExecutablePath() error = %v", err)
	}

	if path == "" {
		t.Error("GetExecutablePath() returned empty path")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("GetExecutablePath() returned path that doesn't exist: %s", path)
	}
}

func TestRunJobFromFile_NonexistentJob(t *testing.T) {
	err := RunJobFromFile(context.Background(), t.TempDir(), "nonexistent", Targets{}, nil)
	if err == nil {
		t.Error("RunJobFromFile() should return error for non-existent job")
	}
}

func TestRunJobFromFile_NotPending(t *testing.T) {
	dataDir := t.TempDir()

	job := NewJob(dataDir)
	job.Status = JobStatusCompleted
	if err := job.Save(); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	err := RunJobFromFile(context.Background(), dataDir, job.ID, Targets{}, nil)
	if err == nil {
		t.Error("RunJobFromFile() should return error for non-pending job")
	}
}

func TestRunJobFromFile_Success(t *testing.T) {
	dataDir := t.TempDir()
	cache := &fakeCache{}

	job := NewJob(dataDir)
	job.ExpiredCacheKeys = []string{"a", "b"}
	if err := job.Save(); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	if err := RunJobFromFile(context.Background(), dataDir, job.ID, Targets{Cache: cache}, nil); err != nil {
		t.Errorf("RunJobFromFile() error = %v", err)
	}

	loaded, err := LoadJob(dataDir, job.ID)
	if err != nil {
		t.Fatalf("LoadJob() error = %v", err)
	}
	if loaded.Status != JobStatusCompleted {
		t.Errorf("Job status = %s, want %s", loaded.Status, JobStatusCompleted)
	}
	if len(cache.removed) != 2 {
		t.Errorf("cache removed %v, want 2 keys", cache.removed)
	}
}

func TestRunJobFromFile_ExecutorCreationFailure(t *testing.T) {
	dataDir := t.TempDir()

	// A job that lists cache keys cannot run without a cache target
	job := NewJob(dataDir)
	job.ExpiredCacheKeys = []string{"k"}
	if err := job.Save(); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	err := RunJobFromFile(context.Background(), dataDir, job.ID, Targets{}, nil)
	if err == nil {
		t.Fatal("RunJobFromFile() should return error when executor creation fails")
	}
	if !strings.Contains(err.Error(), "failed to create executor") {
		t.Errorf("RunJobFromFile() error = %v, want error containing 'failed to create executor'", err)
	}

	loaded, loadErr := LoadJob(dataDir, job.ID)
	if loadErr != nil {
		t.Fatalf("LoadJob() error = %v", loadErr)
	}
	if loaded.Status != JobStatusFailed {
		t.Errorf("Job status = %s, want %s", loaded.Status, JobStatusFailed)
	}
	if loaded.Error == "" {
		t.Error("Job error should be set when executor creation fails")
	}
}

func TestSpawnBackgroundCleanup_InvalidExecutable(t *testing.T) {
	dataDir := t.TempDir()
	job := NewJob(dataDir)
	if err := job.Save(); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	err := SpawnBackgroundCleanup("/nonexistent/executable/path", dataDir, job.ID)
	if err == nil {
		t.Error("SpawnBackgroundCleanup() should return error for invalid executable")
	}
}
