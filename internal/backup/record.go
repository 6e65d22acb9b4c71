// Package backup creates, lists, restores and prunes zip archives of
// project data.
//
// Every archive is described by a Record in backup_info.json, kept in
// creation order and capped at a fixed number of entries. Archives whose
// record falls off the cap are deleted with it.
package backup

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

// InfoFileName is the record list kept next to the archives.
const InfoFileName = "backup_info.json"

// DefaultMaxRecords caps backup_info.json.
const DefaultMaxRecords = 20

// Type labels what an archive contains. It becomes part of the file name.
type Type string

const (
	TypeFull    Type = "full"
	TypeCache   Type = "cache"
	TypeReports Type = "reports"
	TypeManual  Type = "manual"
)

// IsValid reports whether t is usable in a file name.
func (t Type) IsValid() bool {
	if t == "" {
		return false
	}
	for _, r := range t {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

// Record describes one archive.
type Record struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	BackupType  Type      `json:"backup_type"`
	FilePath    string    `json:"file_path"`
	SizeMB      float64   `json:"size_mb"`
	Description string    `json:"description"`
	Files       int       `json:"files"`
}

// Age returns how old the record is relative to now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

func sizeMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

func loadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewBackupError("failed to read backup info", err).WithPath(path)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.NewBackupError("failed to parse backup info", err).
			WithPath(path).
			WithCategory(errors.CategoryValidation)
	}
	return records, nil
}

func saveRecords(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup info: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup_info-*.tmp")
	if err != nil {
		return errors.NewBackupError("failed to write backup info", err).WithPath(path)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.NewBackupError("failed to write backup info", err).WithPath(path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.NewBackupError("failed to write backup info", err).WithPath(path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.NewBackupError("failed to replace backup info", err).WithPath(path)
	}
	return nil
}
