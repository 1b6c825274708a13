package access

import (
	"context"
	"hash/fnv"
	"sync"
)

// Cache stores computed effective-permission sets keyed by user id.
//
// Entries never expire on their own; they only go away through Invalidate
// or Flush. Put carries the generation observed before the underlying data
// was read: an implementation must drop a Put whose generation has been
// superseded, so a resolution that started before an invalidation can never
// overwrite a value computed after it.
type Cache interface {
	Get(ctx context.Context, userID string) ([]string, bool, error)
	Generation(ctx context.Context, userID string) (uint64, error)
	Put(ctx context.Context, userID string, perms []string, generation uint64) error
	Invalidate(ctx context.Context, userIDs ...string) error
	Flush(ctx context.Context) error
}

const memoryCacheShards = 16

type memoryEntry struct {
	perms      []string
	generation uint64
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	gens    map[string]uint64
}

// MemoryCache is a sharded in-process Cache with per-key generation
// counters. It backs tests and single-process deployments; production runs
// on RedisCache.
type MemoryCache struct {
	shards [memoryCacheShards]*memoryShard
}

// NewMemoryCache builds an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{}
	for i := range c.shards {
		c.shards[i] = &memoryShard{
			entries: make(map[string]memoryEntry),
			gens:    make(map[string]uint64),
		}
	}
	return c
}

func (c *MemoryCache) shard(userID string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return c.shards[h.Sum32()%memoryCacheShards]
}

// Get returns the cached set for userID, if present.
func (c *MemoryCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	s := c.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[userID]
	if !ok {
		return nil, false, nil
	}
	perms := make([]string, len(entry.perms))
	copy(perms, entry.perms)
	return perms, true, nil
}

// Generation returns the current invalidation generation for userID.
func (c *MemoryCache) Generation(ctx context.Context, userID string) (uint64, error) {
	s := c.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[userID], nil
}

// Put stores perms for userID unless the generation has been superseded.
func (c *MemoryCache) Put(ctx context.Context, userID string, perms []string, generation uint64) error {
	s := c.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[userID] != generation {
		return nil
	}
	stored := make([]string, len(perms))
	copy(stored, perms)
	s.entries[userID] = memoryEntry{perms: stored, generation: generation}
	return nil
}

// Invalidate drops the entries for the given users and bumps their
// generations so in-flight resolutions cannot repopulate stale data.
func (c *MemoryCache) Invalidate(ctx context.Context, userIDs ...string) error {
	for _, userID := range userIDs {
		s := c.shard(userID)
		s.mu.Lock()
		delete(s.entries, userID)
		s.gens[userID]++
		s.mu.Unlock()
	}
	return nil
}

// Flush drops every entry. Safe at any time; the cache is a disposable
// projection of the store.
func (c *MemoryCache) Flush(ctx context.Context) error {
	for _, s := range c.shards {
		s.mu.Lock()
		for userID := range s.entries {
			delete(s.entries, userID)
			s.gens[userID]++
		}
		s.mu.Unlock()
	}
	return nil
}
