package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryAvailabilityCache is the in-process cache used when Redis is not
// configured and as the failover target when it is.
type MemoryAvailabilityCache struct {
	mu     sync.RWMutex
	hotels map[int64]map[string]memoryEntry
	now    func() time.Time
}

func NewMemoryAvailabilityCache() *MemoryAvailabilityCache {
	return &MemoryAvailabilityCache{
		hotels: make(map[int64]map[string]memoryEntry),
		now:    time.Now,
	}
}

func (c *MemoryAvailabilityCache) Get(_ context.Context, hotelID int64, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.hotels[hotelID][key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryAvailabilityCache) Set(_ context.Context, hotelID int64, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.hotels[hotelID]
	if !ok {
		entries = make(map[string]memoryEntry)
		c.hotels[hotelID] = entries
	}
	now := c.now()
	// чистим протухшие записи, чтобы карта не росла бесконечно
	for k, e := range entries {
		if now.After(e.expiresAt) {
			delete(entries, k)
		}
	}
	entries[key] = memoryEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryAvailabilityCache) Invalidate(_ context.Context, hotelID int64) error {
	c.mu.Lock()
	delete(c.hotels, hotelID)
	c.mu.Unlock()
	return nil
}
