package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
		if rw.FilePath() != logPath {
			t.Errorf("FilePath() = %q, want %q", rw.FilePath(), logPath)
		}
	})

	t.Run("appends to existing file", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "test.log")
		if err := os.WriteFile(logPath, []byte("initial\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(logPath, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		if rw.CurrentSize() != int64(len("initial\n")) {
			t.Errorf("CurrentSize() = %d", rw.CurrentSize())
		}
		if _, err := rw.Write([]byte("appended\n")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		_ = rw.Close()

		content, _ := os.ReadFile(logPath)
		if string(content) != "initial\nappended\n" {
			t.Errorf("content = %q", content)
		}
	})
}

func newSmallWriter(t *testing.T, backups int, compress bool) (*RotatingWriter, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "app.log")
	rw, err := NewRotatingWriter(logPath, RotationConfig{MaxSizeMB: 1, MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	// Shrink the limit so tests don't need to write megabytes.
	rw.maxSizeB = 64
	t.Cleanup(func() { _ = rw.Close() })
	return rw, logPath
}

func TestRotatingWriter_Rotates(t *testing.T) {
	rw, logPath := newSmallWriter(t, 2, false)

	chunk := []byte(strings.Repeat("a", 40) + "\n")
	for i := 0; i < 5; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected backup .1: %v", err)
	}
	if _, err := os.Stat(logPath + ".2"); err != nil {
		t.Errorf("expected backup .2: %v", err)
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("backup .3 should not exist with MaxBackups=2")
	}
	if rw.CurrentSize() != int64(len(chunk)) {
		t.Errorf("CurrentSize() = %d, want %d", rw.CurrentSize(), len(chunk))
	}
}

func TestRotatingWriter_NoBackups(t *testing.T) {
	rw, logPath := newSmallWriter(t, 0, false)

	chunk := []byte(strings.Repeat("b", 50) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("no backups should be kept")
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	rw, logPath := newSmallWriter(t, 1, true)

	first := []byte(strings.Repeat("c", 50) + "\n")
	if _, err := rw.Write(first); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write(first); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(logPath + ".1.gz")
	if err != nil {
		t.Fatalf("expected compressed backup: %v", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if string(data) != string(first) {
		t.Errorf("decompressed = %q, want %q", data, first)
	}
	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed")
	}
}

func TestRotatingWriter_Concurrent(t *testing.T) {
	rw, _ := newSmallWriter(t, 3, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = rw.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, _ := newSmallWriter(t, 1, false)
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("expected error writing to closed writer")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"debug.log", "debug.log.1", "debug.log.2.gz", "errors.jsonl", "debug.log.bak"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := RotatedFiles(dir)
	if err != nil {
		t.Fatalf("RotatedFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d rotated files, want 2: %v", len(files), files)
	}

	missing, err := RotatedFiles(filepath.Join(dir, "missing"))
	if err != nil || missing != nil {
		t.Errorf("missing dir should return nil, nil; got %v, %v", missing, err)
	}
}
