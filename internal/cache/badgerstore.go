package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

const (
	entryPrefix = "entry/"
	indexPrefix = "index/"

	gcDiscardRatio = 0.5
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the database directory. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
	// Logger receives badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps entries and index rows in an embedded badger database.
// Entries live under "entry/{key}" and index rows under "index/{key}" and
// are always written in the same transaction.
type BadgerStore struct {
	db  *badger.DB
	dir string
}

// OpenBadgerStore opens (or creates) a badger-backed store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.NewCacheError("badger store needs a directory", errors.ErrInvalidInput)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, errors.NewCacheError("failed to create badger directory", err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.NewCacheError("failed to open badger database", err).WithSeverity(errors.SeverityHigh)
	}
	return &BadgerStore{db: db, dir: cfg.Dir}, nil
}

// Backend implements Store.
func (s *BadgerStore) Backend() string {
	return "badger"
}

// Get implements Store.
func (s *BadgerStore) Get(key string) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(entryPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return errors.Join(errors.ErrCacheCorrupted, err)
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.NewCacheError("entry not found", errors.ErrCacheMiss).WithKey(key)
		}
		return nil, errors.NewCacheError("failed to read entry", err).WithKey(key)
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return &entry, nil
}

// Put implements Store.
func (s *BadgerStore) Put(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.NewCacheError("failed to encode entry", err).WithKey(entry.Key)
	}
	record, err := json.Marshal(entry.Record())
	if err != nil {
		return errors.NewCacheError("failed to encode index record", err).WithKey(entry.Key)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(entryPrefix+entry.Key), data); err != nil {
			return err
		}
		return txn.Set([]byte(indexPrefix+entry.Key), record)
	})
	if err != nil {
		return errors.NewCacheError("failed to write entry", err).WithKey(entry.Key)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete([]byte(entryPrefix + key)); err != nil {
			return errors.NewCacheError("failed to delete entry", err).WithKey(key)
		}
		if err := wb.Delete([]byte(indexPrefix + key)); err != nil {
			return errors.NewCacheError("failed to delete index record", err).WithKey(key)
		}
	}
	if err := wb.Flush(); err != nil {
		return errors.NewCacheError("failed to flush deletes", err)
	}
	return nil
}

// Index implements Store.
func (s *BadgerStore) Index() (Index, error) {
	index := make(Index)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(indexPrefix):])
			err := item.Value(func(val []byte) error {
				var rec IndexRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return errors.Join(errors.ErrCacheCorrupted, err)
				}
				index[key] = rec
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewCacheError("failed to read index", err)
	}
	return index, nil
}

// Size implements Store.
func (s *BadgerStore) Size() (int64, error) {
	lsm, vlog := s.db.Size()
	return lsm + vlog, nil
}

// Clear implements Store.
func (s *BadgerStore) Clear() error {
	if err := s.db.DropAll(); err != nil {
		return errors.NewCacheError("failed to drop badger data", err)
	}
	return nil
}

// Compact runs one round of value log garbage collection.
func (s *BadgerStore) Compact() error {
	if s.db.Opts().InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(gcDiscardRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return errors.NewCacheError("badger value log GC failed", err).WithSeverity(errors.SeverityLow)
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
