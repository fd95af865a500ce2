package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisAvailabilityCache keeps availability answers in Redis. Every hotel has
// a generation counter; entries are keyed by it, so Invalidate is a single
// INCR and old entries simply age out.
type RedisAvailabilityCache struct {
	client *redis.Client
	prefix string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisAvailabilityCache(client *redis.Client) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{
		client: client,
		prefix: "staybook:avail",
	}
}

func (r *RedisAvailabilityCache) generationKey(hotelID int64) string {
	return fmt.Sprintf("%s:%d:gen", r.prefix, hotelID)
}

func (r *RedisAvailabilityCache) generation(ctx context.Context, hotelID int64) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey(hotelID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

func (r *RedisAvailabilityCache) entryKey(hotelID, gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%d:%s", r.prefix, hotelID, gen, key)
}

func (r *RedisAvailabilityCache) Get(ctx context.Context, hotelID int64, key string) ([]byte, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	gen, err := r.generation(ctx, hotelID)
	if err != nil {
		return nil, false, err
	}
	val, err := r.client.Get(ctx, r.entryKey(hotelID, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get availability from redis: %w", err)
	}
	return val, true, nil
}

func (r *RedisAvailabilityCache) Set(ctx context.Context, hotelID int64, key string, value []byte, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	gen, err := r.generation(ctx, hotelID)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.entryKey(hotelID, gen, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set availability in redis: %w", err)
	}
	return nil
}

func (r *RedisAvailabilityCache) Invalidate(ctx context.Context, hotelID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Incr(ctx, r.generationKey(hotelID)).Err(); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
