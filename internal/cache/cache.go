package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/event"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// DefaultTTL is the age at which entries are treated as misses.
const DefaultTTL = 30 * 24 * time.Hour

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithExcludeDirs replaces the directory names skipped when hashing.
func WithExcludeDirs(dirs ...string) Option {
	return func(c *Cache) {
		c.exclude = append([]string(nil), dirs...)
	}
}

// WithMemoryEntries sizes the in-process LRU tier. Zero disables it.
func WithMemoryEntries(n int) Option {
	return func(c *Cache) {
		c.memorySize = n
	}
}

// WithBus publishes hit, miss and eviction events to bus.
func WithBus(bus *event.Bus) Option {
	return func(c *Cache) {
		c.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger.WithComponent("cache")
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is the analysis cache for a single project root.
type Cache struct {
	store      Store
	root       string
	ttl        time.Duration
	exclude    []string
	memorySize int
	memory     *lru.Cache[string, *Entry]
	bus        *event.Bus
	logger     *logging.Logger
	now        func() time.Time

	// The project hash is memoized only while a Watcher is attached to
	// invalidate it; otherwise every lookup rehashes the tree.
	hashMu    sync.Mutex
	memoize   bool
	hashValid bool
	hash      string

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache for the project at root backed by store.
func New(store Store, root string, opts ...Option) (*Cache, error) {
	c := &Cache{
		store:      store,
		root:       root,
		ttl:        DefaultTTL,
		exclude:    DefaultExcludeDirs,
		memorySize: 128,
		logger:     logging.NopLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.memorySize > 0 {
		mem, err := lru.New[string, *Entry](c.memorySize)
		if err != nil {
			return nil, errors.NewCacheError("failed to create memory tier", err)
		}
		c.memory = mem
	}
	return c, nil
}

// Root returns the project root.
func (c *Cache) Root() string {
	return c.root
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// ProjectHash returns the current project fingerprint.
func (c *Cache) ProjectHash(ctx context.Context) (string, error) {
	c.hashMu.Lock()
	defer c.hashMu.Unlock()

	if c.memoize && c.hashValid {
		return c.hash, nil
	}
	h, err := ProjectHash(ctx, c.root, c.exclude)
	if err != nil {
		return "", errors.NewCacheError("failed to hash project", err)
	}
	c.hash = h
	c.hashValid = true
	return h, nil
}

// Invalidate forgets the memoized project hash.
func (c *Cache) Invalidate() {
	c.hashMu.Lock()
	c.hashValid = false
	c.hashMu.Unlock()
}

func (c *Cache) setMemoize(on bool) {
	c.hashMu.Lock()
	c.memoize = on
	c.hashValid = false
	c.hashMu.Unlock()
}

func (c *Cache) hashIsValid() bool {
	c.hashMu.Lock()
	defer c.hashMu.Unlock()
	return c.memoize && c.hashValid
}

// KeyFor returns the key operation and params map to under the current
// project hash.
func (c *Cache) KeyFor(ctx context.Context, operation string, params map[string]any) (string, error) {
	ph, err := c.ProjectHash(ctx)
	if err != nil {
		return "", err
	}
	key, err := Key(ph, operation, params)
	if err != nil {
		return "", errors.NewCacheError("failed to build key", err).WithOperation(operation)
	}
	return key, nil
}

// Get returns the live entry for operation and params under the current
// project hash. Expired entries are deleted and reported as a miss.
func (c *Cache) Get(ctx context.Context, operation string, params map[string]any) (*Entry, error) {
	key, err := c.KeyFor(ctx, operation, params)
	if err != nil {
		return nil, err
	}

	entry, err := c.load(key)
	if err != nil {
		if errors.Is(err, errors.ErrCacheMiss) {
			c.recordMiss(key, operation)
		}
		return nil, err
	}

	c.recordHit(key, operation, ModeCached)
	return entry, nil
}

// load reads key through the memory tier and enforces the TTL.
func (c *Cache) load(key string) (*Entry, error) {
	var entry *Entry
	if c.memory != nil {
		entry, _ = c.memory.Get(key)
	}
	if entry == nil {
		e, err := c.store.Get(key)
		if err != nil {
			if errors.Is(err, errors.ErrCacheCorrupted) {
				c.logger.Warn("dropping corrupted cache entry", "key", key, "error", err)
				_ = c.store.Delete(key)
				return nil, errors.NewCacheError("entry corrupted", errors.Join(errors.ErrCacheMiss, err)).WithKey(key)
			}
			return nil, err
		}
		entry = e
	}

	if entry.Age(c.now()) > c.ttl {
		c.logger.Debug("cache entry expired", "key", key, "age", entry.Age(c.now()).String())
		c.forget(key)
		if err := c.store.Delete(key); err != nil {
			c.logger.Warn("failed to delete expired entry", "key", key, "error", err)
		}
		return nil, errors.NewCacheError("entry expired", errors.Join(errors.ErrCacheMiss, errors.ErrCacheExpired)).WithKey(key)
	}

	if c.memory != nil {
		c.memory.Add(key, entry)
	}
	return entry, nil
}

func (c *Cache) forget(keys ...string) {
	if c.memory == nil {
		return
	}
	for _, k := range keys {
		c.memory.Remove(k)
	}
}

// Set stores result for operation and params under the current project hash.
func (c *Cache) Set(ctx context.Context, operation string, params map[string]any, result map[string]any, executionTime time.Duration) (*Entry, error) {
	ph, err := c.ProjectHash(ctx)
	if err != nil {
		return nil, err
	}
	key, err := Key(ph, operation, params)
	if err != nil {
		return nil, errors.NewCacheError("failed to build key", err).WithOperation(operation)
	}

	entry := &Entry{
		Key:           key,
		ProjectHash:   ph,
		Operation:     operation,
		Timestamp:     c.now(),
		Result:        result,
		ExecutionTime: executionTime.Seconds(),
	}
	if err := c.store.Put(entry); err != nil {
		return nil, err
	}
	if c.memory != nil {
		c.memory.Add(key, entry)
	}
	c.logger.Debug("cache entry stored", "key", key, "operation", operation)
	return entry, nil
}

// GetOrDifferential returns the entry for the current project hash when
// one is live. Otherwise it falls back to the newest live entry for the same
// operation and params recorded under a different project hash and returns
// it in differential mode. ErrCacheMiss is returned when neither exists.
func (c *Cache) GetOrDifferential(ctx context.Context, operation string, params map[string]any) (*Lookup, error) {
	key, err := c.KeyFor(ctx, operation, params)
	if err != nil {
		return nil, err
	}
	current, rest, _ := splitKey(key)

	if entry, err := c.load(key); err == nil {
		c.recordHit(key, operation, ModeCached)
		return &Lookup{Entry: entry, Mode: ModeCached, OldProjectHash: current, NewProjectHash: current}, nil
	} else if !errors.Is(err, errors.ErrCacheMiss) {
		return nil, err
	}

	index, err := c.store.Index()
	if err != nil {
		return nil, err
	}

	for _, candidate := range newestFirst(index) {
		oldHash, candRest, ok := splitKey(candidate)
		if !ok || oldHash == current || candRest != rest {
			continue
		}
		entry, err := c.load(candidate)
		if err != nil {
			continue
		}
		c.logger.Info("serving differential result", "operation", operation, "old_hash", oldHash, "new_hash", current)
		c.recordHit(candidate, operation, ModeDifferential)
		return &Lookup{Entry: entry, Mode: ModeDifferential, OldProjectHash: oldHash, NewProjectHash: current}, nil
	}

	c.recordMiss(key, operation)
	return nil, errors.NewCacheError("no entry for operation", errors.ErrCacheMiss).WithKey(key).WithOperation(operation)
}

// CleanupExpired deletes entries older than maxAge and returns how many
// were removed.
func (c *Cache) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	expired, err := c.Expired(maxAge)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := c.remove(expired, "expired"); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// Remove deletes the given keys. Keys that no longer exist are ignored.
func (c *Cache) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.remove(keys, "removed")
}

// RemoveUnchangedSince deletes the given keys whose entries were written no
// later than since and returns how many were removed. Keys rewritten after
// since, and keys that no longer exist, are kept or ignored.
func (c *Cache) RemoveUnchangedSince(ctx context.Context, since time.Time, keys ...string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	index, err := c.store.Index()
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, key := range keys {
		rec, ok := index[key]
		if !ok {
			continue
		}
		if rec.Timestamp.After(since) {
			c.logger.Debug("keeping cache entry refreshed after snapshot", "key", key)
			continue
		}
		stale = append(stale, key)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := c.remove(stale, "removed"); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (c *Cache) remove(keys []string, reason string) error {
	if err := c.store.Delete(keys...); err != nil {
		return err
	}
	c.forget(keys...)

	if comp, ok := c.store.(compactor); ok {
		if err := comp.Compact(); err != nil {
			c.logger.Warn("cache compaction failed", "error", err)
		}
	}

	c.logger.Info("cache entries removed", "count", len(keys), "reason", reason)
	c.bus.Publish(event.NewCacheEvictedEvent(keys, reason))
	return nil
}

// Expired lists the keys whose entries are older than maxAge.
func (c *Cache) Expired(maxAge time.Duration) ([]string, error) {
	index, err := c.store.Index()
	if err != nil {
		return nil, err
	}
	cutoff := c.now().Add(-maxAge)
	var keys []string
	for _, key := range newestFirst(index) {
		if index[key].Timestamp.Before(cutoff) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if c.memory != nil {
		c.memory.Purge()
	}
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.logger.Info("cache cleared")
	return nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Backend       string         `json:"backend"`
	Entries       int            `json:"entries"`
	SizeBytes     int64          `json:"size_bytes"`
	ByOperation   map[string]int `json:"by_operation"`
	Oldest        time.Time      `json:"oldest,omitzero"`
	Newest        time.Time      `json:"newest,omitzero"`
	Hits          int64          `json:"hits"`
	Misses        int64          `json:"misses"`
	MemoryEntries int            `json:"memory_entries"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the cache contents and lookup counters.
func (c *Cache) Stats() (Stats, error) {
	index, err := c.store.Index()
	if err != nil {
		return Stats{}, err
	}
	size, err := c.store.Size()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Backend:     c.store.Backend(),
		Entries:     len(index),
		SizeBytes:   size,
		ByOperation: make(map[string]int),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
	}
	if c.memory != nil {
		stats.MemoryEntries = c.memory.Len()
	}
	for _, rec := range index {
		stats.ByOperation[rec.Operation]++
		if stats.Oldest.IsZero() || rec.Timestamp.Before(stats.Oldest) {
			stats.Oldest = rec.Timestamp
		}
		if rec.Timestamp.After(stats.Newest) {
			stats.Newest = rec.Timestamp
		}
	}
	return stats, nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) recordHit(key, operation string, mode Mode) {
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key, "operation", operation, "mode", string(mode))
	c.bus.Publish(event.NewCacheHitEvent(key, operation, string(mode)))
}

func (c *Cache) recordMiss(key, operation string) {
	c.misses.Add(1)
	c.logger.Debug("cache miss", "key", key, "operation", operation)
	c.bus.Publish(event.NewCacheMissEvent(key, operation))
}

// newestFirst returns the index keys ordered by descending timestamp, ties
// broken by key.
func newestFirst(index Index) []string {
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := index[b].Timestamp.Compare(index[a].Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}
