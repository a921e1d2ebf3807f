package cache

import (
	"context"
	"sync"
	"time"

	"github.com/your-org/itemservice/internal/domain"
)

const (
	defaultShardCount      = 16
	defaultTTL             = 15 * time.Minute
	defaultCleanupInterval = 1 * time.Minute
)

// entry is a cached item with its expiration
type entry struct {
	item      *domain.Item
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// shard is a slice of the key space with its own lock
type shard struct {
	mu      sync.RWMutex
	entries map[int64]*entry
}

// ShardedCache is a thread-safe TTL cache of items keyed by item ID
type ShardedCache struct {
	shards          []*shard
	ttl             time.Duration
	cleanupInterval time.Duration

	cleanupMu      sync.Mutex
	cleanupRunning bool
	cleanupStop    chan struct{}
	cleanupWg      sync.WaitGroup
}

// NewShardedCache creates a cache with shardCount shards and a TTL in seconds
func NewShardedCache(shardCount int, ttlSeconds int) *ShardedCache {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultTTL
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[int64]*entry)}
	}

	return &ShardedCache{
		shards:          shards,
		ttl:             ttl,
		cleanupInterval: defaultCleanupInterval,
	}
}

// getShard picks the shard for an ID; IDs are sequential so a modulo spreads them evenly
func (c *ShardedCache) getShard(id int64) *shard {
	idx := uint64(id) % uint64(len(c.shards))
	return c.shards[idx]
}

// Get returns a copy of the cached item (implements domain.ItemCache)
func (c *ShardedCache) Get(ctx context.Context, id int64) (*domain.Item, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}

	s := c.getShard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.expired(time.Now()) {
		// Expired entries are left for the cleanup worker.
		return nil, false
	}

	return e.item.Clone(), true
}

// Set stores a copy of the item under its ID (implements domain.ItemCache)
func (c *ShardedCache) Set(ctx context.Context, item *domain.Item) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if item == nil {
		return nil
	}

	s := c.getShard(item.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[item.ID] = &entry{
		item:      item.Clone(),
		expiresAt: time.Now().Add(c.ttl),
	}

	return nil
}

// Delete removes an item from the cache (implements domain.ItemCache)
func (c *ShardedCache) Delete(ctx context.Context, id int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s := c.getShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// CleanExpired removes all expired entries (implements domain.ItemCache)
func (c *ShardedCache) CleanExpired(ctx context.Context) error {
	now := time.Now()
	for _, s := range c.shards {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		for id, e := range s.entries {
			if e.expired(now) {
				delete(s.entries, id)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// StartCleanupWorker starts a goroutine that periodically removes expired entries
func (c *ShardedCache) StartCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if c.cleanupRunning {
		return
	}

	c.cleanupRunning = true
	c.cleanupStop = make(chan struct{})

	c.cleanupWg.Add(1)
	go c.cleanupWorker(c.cleanupStop)
}

// StopCleanupWorker stops the cleanup goroutine and waits for it
func (c *ShardedCache) StopCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if !c.cleanupRunning {
		return
	}

	close(c.cleanupStop)
	c.cleanupWg.Wait()
	c.cleanupRunning = false
}

func (c *ShardedCache) cleanupWorker(stop <-chan struct{}) {
	defer c.cleanupWg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
		}
	}
}

// Len returns the number of entries, expired ones included
func (c *ShardedCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Stats is a snapshot of cache occupancy
type Stats struct {
	ShardCount   int
	TotalItems   int
	ExpiredItems int
	ShardSizes   []int
}

// GetStats returns a snapshot of cache occupancy
func (c *ShardedCache) GetStats() Stats {
	now := time.Now()
	stats := Stats{
		ShardCount: len(c.shards),
		ShardSizes: make([]int, len(c.shards)),
	}

	for i, s := range c.shards {
		s.mu.RLock()
		stats.ShardSizes[i] = len(s.entries)
		for _, e := range s.entries {
			if e.expired(now) {
				stats.ExpiredItems++
			}
		}
		s.mu.RUnlock()
		stats.TotalItems += stats.ShardSizes[i]
	}

	return stats
}

// Verify that ShardedCache implements domain.ItemCache interface
var _ domain.ItemCache = (*ShardedCache)(nil)
