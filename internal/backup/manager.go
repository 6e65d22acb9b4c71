package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/event"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// Options describe an archive to create.
type Options struct {
	// Sources are files or directories, absolute or relative to the
	// manager's root. They must lie inside the root.
	Sources []string
	// Type labels the archive (default: manual).
	Type Type
	// Description is stored on the record.
	Description string
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRecords caps backup_info.json. Values below 1 are ignored.
func WithMaxRecords(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRecords = n
		}
	}
}

// WithBus publishes a BackupCreatedEvent per archive.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.WithComponent("backup")
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns a directory of archives and their record list.
type Manager struct {
	root       string
	dir        string
	maxRecords int
	bus        *event.Bus
	logger     *logging.Logger
	now        func() time.Time

	mu sync.Mutex
}

// NewManager creates a Manager that archives files under root into dir.
func NewManager(root, dir string, opts ...Option) (*Manager, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		root:       absRoot,
		dir:        absDir,
		maxRecords: DefaultMaxRecords,
		logger:     logging.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Dir returns the archive directory.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) infoPath() string {
	return filepath.Join(m.dir, InfoFileName)
}

// List returns every record, oldest first.
func (m *Manager) List() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return loadRecords(m.infoPath())
}

// Get returns the record with the given ID.
func (m *Manager) Get(id string) (Record, error) {
	records, err := m.List()
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, errors.NewBackupError("no such backup", errors.ErrBackupNotFound).WithBackupID(id)
}

// Create writes a new archive of opts.Sources and records it. Files are
// stored with paths relative to the root. The archive directory itself is
// never included.
func (m *Manager) Create(ctx context.Context, opts Options) (Record, error) {
	if len(opts.Sources) == 0 {
		return Record{}, errors.NewBackupError("nothing to back up", errors.ErrNoSources).
			WithCategory(errors.CategoryValidation)
	}
	if opts.Type == "" {
		opts.Type = TypeManual
	}
	if !opts.Type.IsValid() {
		return Record{}, errors.NewValidationError("backup type must be lowercase letters, digits or dashes").
			WithField("type").
			WithValue(string(opts.Type))
	}

	sources := make([]string, 0, len(opts.Sources))
	for _, src := range opts.Sources {
		abs, err := m.resolveSource(src)
		if err != nil {
			return Record{}, err
		}
		sources = append(sources, abs)
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Record{}, errors.NewBackupError("failed to create backup directory", err).WithPath(m.dir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	path := m.archivePath(opts.Type, now)

	files, err := m.writeArchive(ctx, path, sources)
	if err != nil {
		return Record{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Record{}, errors.NewBackupError("failed to stat archive", err).WithPath(path)
	}

	rec := Record{
		ID:          uuid.NewString()[:8],
		Timestamp:   now,
		BackupType:  opts.Type,
		FilePath:    path,
		SizeMB:      sizeMB(info.Size()),
		Description: opts.Description,
		Files:       files,
	}

	records, err := loadRecords(m.infoPath())
	if err != nil {
		m.logger.Warn("discarding unreadable backup info", "error", err)
		records = nil
	}
	records = append(records, rec)
	if over := len(records) - m.maxRecords; over > 0 {
		for _, old := range records[:over] {
			m.removeArchive(old)
		}
		records = records[over:]
	}
	if err := saveRecords(m.infoPath(), records); err != nil {
		return Record{}, err
	}

	m.logger.Info("backup created",
		"id", rec.ID,
		"type", string(rec.BackupType),
		"path", rec.FilePath,
		"files", rec.Files,
		"size_mb", rec.SizeMB,
	)
	m.bus.Publish(event.NewBackupCreatedEvent(rec.ID, string(rec.BackupType), rec.FilePath, rec.SizeMB))
	return rec, nil
}

func (m *Manager) resolveSource(src string) (string, error) {
	abs := src
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(m.root, src)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || !filepath.IsLocal(rel) && rel != "." {
		return "", errors.NewValidationError("backup source must be inside the project root").
			WithField("sources").
			WithValue(src)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", errors.NewBackupError("backup source unavailable", err).WithPath(abs)
	}
	return abs, nil
}

// archivePath returns backup_{type}_{timestamp}.zip, suffixed when a file
// with that name already exists.
func (m *Manager) archivePath(t Type, now time.Time) string {
	base := fmt.Sprintf("backup_%s_%s", t, now.Format("20060102_150405"))
	path := filepath.Join(m.dir, base+".zip")
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(m.dir, fmt.Sprintf("%s_%d.zip", base, n))
	}
}

func (m *Manager) writeArchive(ctx context.Context, path string, sources []string) (int, error) {
	tmp, err := os.CreateTemp(m.dir, ".backup-*.zip.tmp")
	if err != nil {
		return 0, errors.NewBackupError("failed to create archive", err).WithPath(path)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, err
	}

	zw := zip.NewWriter(tmp)
	written := make(map[string]bool)
	files := 0
	for _, src := range sources {
		err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if p == m.dir {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || written[p] {
				return nil
			}
			if err := addFile(zw, m.root, p); err != nil {
				return err
			}
			written[p] = true
			files++
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fail(err)
			}
			return fail(errors.NewBackupError("failed to archive source", err).WithPath(src))
		}
	}
	if err := zw.Close(); err != nil {
		return fail(errors.NewBackupError("failed to finish archive", err).WithPath(path))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.NewBackupError("failed to finish archive", err).WithPath(path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.NewBackupError("failed to move archive into place", err).WithPath(path)
	}
	return files, nil
}

func addFile(zw *zip.Writer, root, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(w, f)
	return err
}

func (m *Manager) removeArchive(r Record) {
	if err := os.Remove(r.FilePath); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove archive", "id", r.ID, "path", r.FilePath, "error", err)
	}
}
