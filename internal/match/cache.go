package match

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCacheMaxEntries  = 1000
	defaultCacheEvictTarget = 800
	defaultCacheFlushEvery  = 20
)

// PairKey is the canonical identity of an unordered user pair.
type PairKey struct {
	Low  uint64 `json:"low"`
	High uint64 `json:"high"`
}

func (k PairKey) String() string {
	return fmt.Sprintf("%d-%d", k.Low, k.High)
}

// canonPair orders two user ids so that canonPair(a,b) == canonPair(b,a).
func canonPair(a, b uint64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// CacheEntry is a memoized compatibility result.
type CacheEntry struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// PairCache memoizes (score, reason) results per canonical pair, backed
// by a JSON file. It is an optimization, not a source of truth: a
// corrupt or missing file only costs recomputation. Writes are batched;
// call Flush before process exit.
type PairCache struct {
	path        string
	maxEntries  int
	evictTarget int
	flushEvery  int
	logger      *zap.Logger

	mu      sync.Mutex
	entries map[PairKey]CacheEntry
	loaded  bool
	pending int
}

// CacheOption tweaks PairCache limits.
type CacheOption func(*PairCache)

func WithCacheLimits(maxEntries, evictTarget int) CacheOption {
	return func(c *PairCache) {
		if maxEntries > 0 {
			c.maxEntries = maxEntries
		}
		if evictTarget > 0 && evictTarget <= c.maxEntries {
			c.evictTarget = evictTarget
		}
	}
}

func WithFlushEvery(n int) CacheOption {
	return func(c *PairCache) {
		if n > 0 {
			c.flushEvery = n
		}
	}
}

// NewPairCache creates a cache backed by the given file path. An empty
// path keeps the cache purely in-memory.
func NewPairCache(path string, logger *zap.Logger, opts ...CacheOption) *PairCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &PairCache{
		path:        path,
		maxEntries:  defaultCacheMaxEntries,
		evictTarget: defaultCacheEvictTarget,
		flushEvery:  defaultCacheFlushEvery,
		logger:      logger,
		entries:     make(map[PairKey]CacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the memoized result for the pair, in either id order.
func (c *PairCache) Get(a, b uint64) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	entry, ok := c.entries[canonPair(a, b)]
	return entry, ok
}

// Put memoizes a result for the pair. The durable file is rewritten only
// every flushEvery puts to bound I/O.
func (c *PairCache) Put(a, b uint64, score int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()

	c.entries[canonPair(a, b)] = CacheEntry{Score: score, Reason: reason}
	c.pending++
	if c.pending >= c.flushEvery {
		c.flushLocked()
	}
}

// Len reports the current in-memory entry count.
func (c *PairCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return len(c.entries)
}

// Flush persists the cache to its backing file, evicting down to the
// target size first when over the maximum. Errors are logged, never
// fatal; the cache keeps serving from memory.
func (c *PairCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	c.flushLocked()
}

func (c *PairCache) flushLocked() {
	c.pending = 0
	c.evictLocked()

	if c.path == "" {
		return
	}

	serial := make(map[string]CacheEntry, len(c.entries))
	for key, entry := range c.entries {
		serial[key.String()] = entry
	}

	data, err := json.Marshal(serial)
	if err != nil {
		c.logger.Warn("marshaling pair cache", zap.Error(err))
		return
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		c.logger.Warn("writing pair cache file", zap.String("path", c.path), zap.Error(err))
	}
}

// evictLocked drops entries in ascending key order until at the target
// size. Deterministic by construction; recency is deliberately ignored.
func (c *PairCache) evictLocked() {
	if len(c.entries) <= c.maxEntries {
		return
	}

	keys := make([]PairKey, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Low != keys[j].Low {
			return keys[i].Low < keys[j].Low
		}
		return keys[i].High < keys[j].High
	})

	drop := len(c.entries) - c.evictTarget
	for _, key := range keys[:drop] {
		delete(c.entries, key)
	}

	c.logger.Debug("evicted pair cache entries",
		zap.Int("dropped", drop),
		zap.Int("left", len(c.entries)),
	)
}

// loadLocked lazily reads the backing file on first access. A malformed
// file is backed up and the cache starts empty instead of failing.
func (c *PairCache) loadLocked() {
	if c.loaded {
		return
	}
	c.loaded = true

	if c.path == "" {
		return
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("reading pair cache file", zap.String("path", c.path), zap.Error(err))
		}
		return
	}

	var serial map[string]CacheEntry
	if err := json.Unmarshal(data, &serial); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", c.path, time.Now().Unix())
		if renameErr := os.Rename(c.path, backup); renameErr != nil {
			c.logger.Warn("backing up corrupt pair cache", zap.Error(renameErr))
		}
		c.logger.Warn("pair cache file is corrupt; starting empty",
			zap.String("path", c.path),
			zap.String("backup", backup),
			zap.Error(err),
		)
		return
	}

	for key, entry := range serial {
		var low, high uint64
		if _, err := fmt.Sscanf(key, "%d-%d", &low, &high); err != nil {
			continue
		}
		c.entries[canonPair(low, high)] = entry
	}

	c.logger.Debug("loaded pair cache", zap.String("path", c.path), zap.Int("entries", len(c.entries)))
}
