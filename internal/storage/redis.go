package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webhook-indexer/internal/config"
)

// Fast-path cache key prefixes, keyed by tenant database ID.
const (
	KeyPrefixUser     = "user:"
	KeyPrefixSettings = "settings:"
	KeyPrefixDatabase = "database:"
)

// UserKey returns the fast-path cache key for a tenant's user row
func UserKey(databaseID string) string { return KeyPrefixUser + databaseID }

// SettingsKey returns the fast-path cache key for a tenant's rule set
func SettingsKey(databaseID string) string { return KeyPrefixSettings + databaseID }

// DatabaseKey returns the fast-path cache key for a tenant's config row
func DatabaseKey(databaseID string) string { return KeyPrefixDatabase + databaseID }

// RedisCache wraps the Redis client used for the fast-path cache
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client. Used by tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set sets a key-value pair with TTL
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value by key. A cache miss returns redis.Nil.
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

// Del deletes one or more keys
func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// IsMiss reports whether err signals a cache miss
func IsMiss(err error) bool {
	return err == redis.Nil
}

// InvalidateTenant removes the tenant's user, settings, and database entries
// from the fast-path cache so subsequent reads are forced fresh.
func (r *RedisCache) InvalidateTenant(ctx context.Context, databaseID string) error {
	return r.Del(ctx, UserKey(databaseID), SettingsKey(databaseID), DatabaseKey(databaseID))
}
