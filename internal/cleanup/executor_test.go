package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/devcrew/internal/backup"
	"github.com/Iron-Ham/devcrew/internal/errors"
)

type fakeCache struct {
	expired   []string
	refreshed map[string]bool // keys rewritten after the snapshot
	since     time.Time
	removed   []string
	removeErr error
}

func (c *fakeCache) Expired(time.Duration) ([]string, error) {
	return c.expired, nil
}

func (c *fakeCache) RemoveUnchangedSince(_ context.Context, since time.Time, keys ...string) (int, error) {
	if c.removeErr != nil {
		return 0, c.removeErr
	}
	c.since = since
	n := 0
	for _, k := range keys {
		if c.refreshed[k] {
			continue
		}
		c.removed = append(c.removed, k)
		n++
	}
	return n, nil
}

type fakeBackups struct {
	stale   []backup.Record
	present map[string]bool
	removed []string
}

func (b *fakeBackups) Stale(time.Duration) ([]backup.Record, error) {
	return b.stale, nil
}

func (b *fakeBackups) Remove(id string) error {
	if !b.present[id] {
		return errors.NewBackupError("no such backup", errors.ErrBackupNotFound).WithBackupID(id)
	}
	delete(b.present, id)
	b.removed = append(b.removed, id)
	return nil
}

func writeRotatedLog(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("log line\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	logDir := filepath.Join(dataDir, "logs")
	oldLog := writeRotatedLog(t, logDir, "debug.log.2", 10*24*time.Hour)
	writeRotatedLog(t, logDir, "debug.log.1", time.Hour)
	writeRotatedLog(t, logDir, "debug.log", 20*24*time.Hour) // active log is never snapshotted

	targets := Targets{
		Cache: &fakeCache{expired: []string{"k1", "k2"}},
		Backups: &fakeBackups{stale: []backup.Record{
			{ID: "b1", FilePath: "/x/backup_full_1.zip", SizeMB: 2},
		}},
		LogDir: logDir,
	}

	job, err := Snapshot(dataDir, targets, Policy{
		CacheMaxAge:  30 * 24 * time.Hour,
		BackupMaxAge: 30 * 24 * time.Hour,
		LogMaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if job.Status != JobStatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if !slices.Equal(job.ExpiredCacheKeys, []string{"k1", "k2"}) {
		t.Errorf("ExpiredCacheKeys = %v", job.ExpiredCacheKeys)
	}
	if len(job.StaleBackups) != 1 || job.StaleBackups[0].Path != "/x/backup_full_1.zip" {
		t.Errorf("StaleBackups = %+v", job.StaleBackups)
	}
	if len(job.StaleLogs) != 1 || job.StaleLogs[0].Path != oldLog {
		t.Errorf("StaleLogs = %+v, want only %s", job.StaleLogs, oldLog)
	}
}

func TestSnapshot_DisabledPolicies(t *testing.T) {
	cache := &fakeCache{expired: []string{"k1"}}
	job, err := Snapshot(t.TempDir(), Targets{Cache: cache}, Policy{})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if job.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 with a zero policy", job.Pending())
	}
}

func TestNewExecutor_MissingTargets(t *testing.T) {
	job := NewJob(t.TempDir())
	if _, err := NewExecutor(job, Targets{}, nil); err != nil {
		t.Errorf("empty job should not need targets: %v", err)
	}

	job.ExpiredCacheKeys = []string{"k"}
	if _, err := NewExecutor(job, Targets{}, nil); err == nil {
		t.Error("NewExecutor() should fail without a cache target")
	}

	job.ExpiredCacheKeys = nil
	job.StaleBackups = []StaleBackup{{ID: "b"}}
	if _, err := NewExecutor(job, Targets{}, nil); err == nil {
		t.Error("NewExecutor() should fail without a backup target")
	}
}

func TestExecutor_Execute(t *testing.T) {
	dataDir := t.TempDir()
	logDir := filepath.Join(dataDir, "logs")
	stale := writeRotatedLog(t, logDir, "debug.log.3", 30*24*time.Hour)

	cache := &fakeCache{}
	backups := &fakeBackups{present: map[string]bool{"b1": true}}

	job := NewJob(dataDir)
	job.ExpiredCacheKeys = []string{"k1", "k2", "k3"}
	job.StaleBackups = []StaleBackup{{ID: "b1"}, {ID: "already-gone"}}
	job.StaleLogs = []StaleLog{{Path: stale}, {Path: filepath.Join(logDir, "debug.log.9")}}

	executor, err := NewExecutor(job, Targets{Cache: cache, Backups: backups, LogDir: logDir}, nil)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if err := executor.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	loaded, err := LoadJob(dataDir, job.ID)
	if err != nil {
		t.Fatalf("LoadJob() error = %v", err)
	}
	if loaded.Status != JobStatusCompleted {
		t.Errorf("Status = %s, want completed (error: %s)", loaded.Status, loaded.Error)
	}
	if loaded.StartedAt.IsZero() || loaded.EndedAt.IsZero() {
		t.Error("StartedAt and EndedAt should be recorded")
	}

	r := loaded.Results
	if r == nil {
		t.Fatal("Results should be set")
	}
	if r.CacheEntriesRemoved != 3 || r.BackupsRemoved != 1 || r.LogsRemoved != 1 {
		t.Errorf("Results = %+v", r)
	}
	if r.TotalRemoved != 5 {
		t.Errorf("TotalRemoved = %d, want 5", r.TotalRemoved)
	}
	if len(r.Errors) != 0 {
		t.Errorf("vanished resources should not be errors: %v", r.Errors)
	}
	if !slices.Equal(cache.removed, []string{"k1", "k2", "k3"}) {
		t.Errorf("cache removed %v", cache.removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale log should be deleted")
	}
}

func TestExecutor_Execute_KeepsRefreshedCacheKeys(t *testing.T) {
	dataDir := t.TempDir()
	cache := &fakeCache{refreshed: map[string]bool{"structure": true}}

	job := NewJob(dataDir)
	job.ExpiredCacheKeys = []string{"structure", "dependencies"}

	executor, err := NewExecutor(job, Targets{Cache: cache}, nil)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if err := executor.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !cache.since.Equal(job.CreatedAt) {
		t.Errorf("removal cutoff = %v, want job creation time %v", cache.since, job.CreatedAt)
	}
	if !slices.Equal(cache.removed, []string{"dependencies"}) {
		t.Errorf("cache removed %v, want only dependencies", cache.removed)
	}

	loaded, err := LoadJob(dataDir, job.ID)
	if err != nil {
		t.Fatalf("LoadJob() error = %v", err)
	}
	if loaded.Status != JobStatusCompleted {
		t.Errorf("Status = %s, want completed", loaded.Status)
	}
	if loaded.Results.CacheEntriesRemoved != 1 || loaded.Results.TotalRemoved != 1 {
		t.Errorf("Results = %+v, want one cache entry removed", loaded.Results)
	}
}

func TestExecutor_Execute_AllFail(t *testing.T) {
	dataDir := t.TempDir()
	cache := &fakeCache{removeErr: errors.NewCacheError("disk full", nil)}

	job := NewJob(dataDir)
	job.ExpiredCacheKeys = []string{"k1"}

	executor, err := NewExecutor(job, Targets{Cache: cache}, nil)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if err := executor.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	loaded, err := LoadJob(dataDir, job.ID)
	if err != nil {
		t.Fatalf("LoadJob() error = %v", err)
	}
	if loaded.Status != JobStatusFailed {
		t.Errorf("Status = %s, want failed", loaded.Status)
	}
	if !strings.Contains(loaded.Error, "all operations failed") {
		t.Errorf("Error = %q", loaded.Error)
	}
}

func TestExecutor_Execute_Cancelled(t *testing.T) {
	dataDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewJob(dataDir)
	job.StaleLogs = []StaleLog{{Path: writeRotatedLog(t, filepath.Join(dataDir, "logs"), "debug.log.1", time.Hour)}}

	executor, err := NewExecutor(job, Targets{}, nil)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if err := executor.Execute(ctx); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if job.Status != JobStatusCancelled {
		t.Errorf("Status = %s, want cancelled", job.Status)
	}
	if job.Results.LogsRemoved != 0 {
		t.Errorf("LogsRemoved = %d, want 0", job.Results.LogsRemoved)
	}
}

func TestExecutor_RealBackupManager(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	dataDir := filepath.Join(root, ".devcrew")

	now := time.Now().Add(-60 * 24 * time.Hour)
	mgr, err := backup.NewManager(root, filepath.Join(dataDir, "backups"), backup.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	old, err := mgr.Create(context.Background(), backup.Options{Sources: []string{"notes.txt"}})
	if err != nil {
		t.Fatal(err)
	}

	job, err := Snapshot(dataDir, Targets{Backups: staleAsOfNow{mgr}}, Policy{BackupMaxAge: 30 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(job.StaleBackups) != 1 || job.StaleBackups[0].ID != old.ID {
		t.Fatalf("StaleBackups = %+v", job.StaleBackups)
	}

	executor, err := NewExecutor(job, Targets{Backups: mgr}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := executor.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if job.Results.BackupsRemoved != 1 {
		t.Errorf("BackupsRemoved = %d, want 1", job.Results.BackupsRemoved)
	}
	if _, err := os.Stat(old.FilePath); !os.IsNotExist(err) {
		t.Error("archive should be deleted")
	}
}

// staleAsOfNow evaluates backup age against the wall clock rather than the
// manager's pinned test clock.
type staleAsOfNow struct {
	m *backup.Manager
}

func (s staleAsOfNow) Stale(maxAge time.Duration) ([]backup.Record, error) {
	records, err := s.m.List()
	if err != nil {
		return nil, err
	}
	var stale []backup.Record
	for _, r := range records {
		if r.Age(time.Now()) > maxAge {
			stale = append(stale, r)
		}
	}
	return stale, nil
}

func (s staleAsOfNow) Remove(id string) error {
	return s.m.Remove(id)
}
