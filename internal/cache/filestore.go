package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

const (
	// IndexFileName is the JSON index kept alongside the entry blobs.
	IndexFileName = "cache_index.json"

	compressedSuffix = ".entry.zst"
	plainSuffix      = ".entry.json"
)

// FileStore keeps one blob per key in a directory plus a JSON index.
//
// Index updates are read-modify-write cycles serialized by a mutex and
// published with an atomic rename, so a crash never leaves a truncated index.
type FileStore struct {
	dir      string
	compress bool

	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewFileStore creates the directory if needed and returns a store rooted
// there. When compress is set, blobs are written zstd-compressed; blobs in
// either encoding are readable regardless.
func NewFileStore(dir string, compress bool) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewCacheError("failed to create cache directory", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.NewCacheError("failed to create zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, errors.NewCacheError("failed to create zstd decoder", err)
	}
	return &FileStore{dir: dir, compress: compress, enc: enc, dec: dec}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Backend implements Store.
func (s *FileStore) Backend() string {
	return "file"
}

func (s *FileStore) blobPath(key string, compressed bool) string {
	if compressed {
		return filepath.Join(s.dir, key+compressedSuffix)
	}
	return filepath.Join(s.dir, key+plainSuffix)
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dir, IndexFileName)
}

// Get implements Store.
func (s *FileStore) Get(key string) (*Entry, error) {
	data, compressed, err := s.readBlob(key)
	if err != nil {
		return nil, err
	}
	if compressed {
		data, err = s.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.NewCacheError("failed to decompress entry", errors.Join(errors.ErrCacheCorrupted, err)).WithKey(key)
		}
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.NewCacheError("failed to decode entry", errors.Join(errors.ErrCacheCorrupted, err)).WithKey(key)
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return &entry, nil
}

func (s *FileStore) readBlob(key string) ([]byte, bool, error) {
	for _, compressed := range []bool{s.compress, !s.compress} {
		data, err := os.ReadFile(s.blobPath(key, compressed))
		if err == nil {
			return data, compressed, nil
		}
		if !os.IsNotExist(err) {
			return nil, false, errors.NewCacheError("failed to read entry", err).WithKey(key)
		}
	}
	return nil, false, errors.NewCacheError("entry not found", errors.ErrCacheMiss).WithKey(key)
}

// Put implements Store.
func (s *FileStore) Put(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.NewCacheError("failed to encode entry", err).WithKey(entry.Key)
	}
	if s.compress {
		data = s.enc.EncodeAll(data, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.blobPath(entry.Key, s.compress), data); err != nil {
		return errors.NewCacheError("failed to write entry", err).WithKey(entry.Key)
	}
	// Drop a stale blob left in the other encoding.
	_ = os.Remove(s.blobPath(entry.Key, !s.compress))

	index, err := s.loadIndex()
	if err != nil && !errors.Is(err, errors.ErrCacheCorrupted) {
		return err
	}
	if index == nil {
		index = make(Index)
	}
	index[entry.Key] = entry.Record()
	return s.saveIndex(index)
}

// Delete implements Store.
func (s *FileStore) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		for _, compressed := range []bool{true, false} {
			if err := os.Remove(s.blobPath(key, compressed)); err != nil && !os.IsNotExist(err) {
				return errors.NewCacheError("failed to delete entry", err).WithKey(key)
			}
		}
	}

	index, err := s.loadIndex()
	if err != nil {
		if errors.Is(err, errors.ErrCacheCorrupted) {
			return nil
		}
		return err
	}
	changed := false
	for _, key := range keys {
		if _, ok := index[key]; ok {
			delete(index, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveIndex(index)
}

// Index implements Store.
func (s *FileStore) Index() (Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndex()
}

// loadIndex reads the index from disk. A missing index is empty.
// Callers must hold s.mu.
func (s *FileStore) loadIndex() (Index, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Index), nil
		}
		return nil, errors.NewCacheError("failed to read index", err)
	}

	index := make(Index)
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errors.NewCacheError("failed to decode index", errors.Join(errors.ErrCacheCorrupted, err))
	}
	return index, nil
}

// saveIndex writes the index atomically. Callers must hold s.mu.
func (s *FileStore) saveIndex(index Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return errors.NewCacheError("failed to encode index", err)
	}
	if err := writeFileAtomic(s.indexPath(), data); err != nil {
		return errors.NewCacheError("failed to write index", err)
	}
	return nil
}

// Size implements Store.
func (s *FileStore) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, errors.NewCacheError("failed to list cache directory", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !s.owns(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewCacheError("failed to list cache directory", err)
	}
	for _, e := range entries {
		if e.IsDir() || !s.owns(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return errors.NewCacheError("failed to remove cache file", err)
		}
	}
	return nil
}

func (s *FileStore) owns(name string) bool {
	return name == IndexFileName ||
		strings.HasSuffix(name, compressedSuffix) ||
		strings.HasSuffix(name, plainSuffix)
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
