// RedisStore backs the export cache with go-redis, for deployments that run
// more than one API process.
package exportcache

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore is a Store backed by Redis. Counters use INCRBY, so every
// process sharing the server observes the same invalidations.
type RedisStore struct {
	client *redis.Client
}

const redisConnectTimeout = 5 * time.Second

// NewRedisStore connects to Redis and verifies the connection with PING.
// Addr may be host:port or a redis:// URL.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	addr := opts.Addr
	if u, err := url.Parse(opts.Addr); err == nil && u.Scheme == "redis" {
		addr = u.Host
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Counter implements Store.
func (r *RedisStore) Counter(ctx context.Context, key string) (int64, error) {
	s, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

// Increment implements Store.
func (r *RedisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return r.client.IncrBy(ctx, key, delta).Result()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
