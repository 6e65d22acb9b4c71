package cache

// Store persists cache entries and their index.
//
// Get returns an error matching errors.ErrCacheMiss when the key is absent
// and errors.ErrCacheCorrupted when the stored data cannot be decoded.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get loads the entry for key.
	Get(key string) (*Entry, error)
	// Put writes the entry and records it in the index.
	Put(entry *Entry) error
	// Delete removes the given keys. Unknown keys are ignored.
	Delete(keys ...string) error
	// Index returns a snapshot of the index.
	Index() (Index, error)
	// Size returns the bytes used on disk.
	Size() (int64, error)
	// Clear removes every entry.
	Clear() error
	// Backend names the implementation ("file", "badger").
	Backend() string
	// Close releases resources held by the store.
	Close() error
}

// compactor is implemented by stores that can reclaim space after deletes.
type compactor interface {
	Compact() error
}
