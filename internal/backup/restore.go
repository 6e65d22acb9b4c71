package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

// Restore extracts the archive with the given ID into dest and returns the
// number of files written. Every entry is checked before anything is
// extracted; an entry that would land outside dest fails the whole restore
// with ErrUnsafeArchivePath.
func (m *Manager) Restore(ctx context.Context, id, dest string) (int, error) {
	rec, err := m.Get(id)
	if err != nil {
		return 0, err
	}

	zr, err := zip.OpenReader(rec.FilePath)
	if err != nil {
		return 0, errors.NewBackupError("failed to open archive", err).WithBackupID(id).WithPath(rec.FilePath)
	}
	defer func() { _ = zr.Close() }()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	targets := make([]string, len(zr.File))
	for i, f := range zr.File {
		target, err := safeTarget(dest, f.Name)
		if err != nil {
			return 0, errors.NewBackupError(f.Name, err).WithBackupID(id).WithCategory(errors.CategoryValidation)
		}
		targets[i] = target
	}

	files := 0
	for i, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targets[i], 0o755); err != nil {
				return files, errors.NewBackupError("failed to create directory", err).WithPath(targets[i])
			}
			continue
		}
		if err := extractFile(f, targets[i]); err != nil {
			return files, errors.NewBackupError("failed to extract file", err).WithBackupID(id).WithPath(targets[i])
		}
		files++
	}

	m.logger.Info("backup restored", "id", id, "dest", dest, "files", files)
	return files, nil
}

// safeTarget maps an archive entry name to a path under dest.
func safeTarget(dest, name string) (string, error) {
	rel := filepath.FromSlash(name)
	if name == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", errors.ErrUnsafeArchivePath
	}
	return filepath.Join(dest, rel), nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Prune deletes archives older than maxAge together with their records and
// returns the removed records. A non-positive maxAge keeps everything.
func (m *Manager) Prune(ctx context.Context, maxAge time.Duration) ([]Record, error) {
	if maxAge <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := loadRecords(m.infoPath())
	if err != nil {
		return nil, err
	}
	now := m.now()
	var kept, removed []Record
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Age(now) > maxAge {
			m.removeArchive(r)
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := saveRecords(m.infoPath(), kept); err != nil {
		return nil, err
	}
	m.logger.Info("pruned backups", "removed", len(removed), "kept", len(kept))
	return removed, nil
}

// Stale returns records older than maxAge without removing anything.
func (m *Manager) Stale(maxAge time.Duration) ([]Record, error) {
	if maxAge <= 0 {
		return nil, nil
	}
	records, err := m.List()
	if err != nil {
		return nil, err
	}
	now := m.now()
	var stale []Record
	for _, r := range records {
		if r.Age(now) > maxAge {
			stale = append(stale, r)
		}
	}
	return stale, nil
}

// Remove deletes one archive and its record.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := loadRecords(m.infoPath())
	if err != nil {
		return err
	}
	for i, r := range records {
		if r.ID != id {
			continue
		}
		m.removeArchive(r)
		records = append(records[:i], records[i+1:]...)
		return saveRecords(m.infoPath(), records)
	}
	return errors.NewBackupError("no such backup", errors.ErrBackupNotFound).WithBackupID(id)
}
