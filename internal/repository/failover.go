package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"staybook/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverAvailabilityCache serves from primary (Redis) and switches to
// fallback (memory) when primary errors. Invalidations always reach the
// fallback so it never serves an answer older than the last write.
type FailoverAvailabilityCache struct {
	primary  domain.AvailabilityCache
	fallback domain.AvailabilityCache
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverAvailabilityCache(primary, fallback domain.AvailabilityCache, logger *zerolog.Logger) *FailoverAvailabilityCache {
	return &FailoverAvailabilityCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverAvailabilityCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary availability cache failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the primary should be tried. While down, one
// probe is let through per recovery interval.
func (r *FailoverAvailabilityCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverAvailabilityCache) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary availability cache recovered")
	}
}

func (r *FailoverAvailabilityCache) Get(ctx context.Context, hotelID int64, key string) ([]byte, bool, error) {
	if r.usePrimary() {
		val, ok, err := r.primary.Get(ctx, hotelID, key)
		if err == nil {
			r.recovered()
			return val, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, hotelID, key)
}

func (r *FailoverAvailabilityCache) Set(ctx context.Context, hotelID int64, key string, value []byte, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Set(ctx, hotelID, key, value, ttl)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Set(ctx, hotelID, key, value, ttl)
}

func (r *FailoverAvailabilityCache) Invalidate(ctx context.Context, hotelID int64) error {
	fallbackErr := r.fallback.Invalidate(ctx, hotelID)
	if r.usePrimary() {
		err := r.primary.Invalidate(ctx, hotelID)
		if err == nil {
			r.recovered()
			return fallbackErr
		}
		r.markDown(err)
	}
	return fallbackErr
}

// NewAvailabilityCache returns the memory cache when client is nil and Redis
// with memory failover otherwise.
func NewAvailabilityCache(client *redis.Client, logger *zerolog.Logger) domain.AvailabilityCache {
	memory := NewMemoryAvailabilityCache()
	if client == nil {
		return memory
	}
	return NewFailoverAvailabilityCache(NewRedisAvailabilityCache(client), memory, logger)
}
