// ABOUTME: Redis-backed token backend shared between processes
// ABOUTME: One key per entry with TTL from the cookie expiry, written in MULTI/EXEC

package tokenstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "xam:token:"

// RedisBackend stores entries as plain string keys under a prefix.
type RedisBackend struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisBackend wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix, now: time.Now}
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisBackend) key(name string) string {
	return r.prefix + name
}

func (r *RedisBackend) Load(ctx context.Context, names ...string) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = r.key(name)
	}

	res, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens from redis: %w", err)
	}

	vals := make(map[string]string, len(names))
	for i, v := range res {
		if s, ok := v.(string); ok {
			vals[names[i]] = s
		}
	}
	return vals, nil
}

func (r *RedisBackend) Save(ctx context.Context, cookies []*http.Cookie) error {
	now := r.now()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range cookies {
			var ttl time.Duration
			if !c.Expires.IsZero() {
				ttl = c.Expires.Sub(now)
				if ttl <= 0 {
					pipe.Del(ctx, r.key(c.Name))
					continue
				}
			}
			pipe.Set(ctx, r.key(c.Name), c.Value, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save tokens to redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = r.key(name)
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete tokens from redis: %w", err)
	}
	return nil
}
