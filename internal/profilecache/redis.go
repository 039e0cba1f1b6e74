package profilecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webmasterarbez/elaaoms-claude-sub000/internal/config"
)

// RedisBackend is a Backend implementation shared across process
// replicas, letting the Agent-Profile Cache survive a single instance's
// restart and avoid a thundering-herd refetch across the fleet. Grounded
// on the teacher's internal/skills.RedisSkillsCache (Options construction,
// ping-on-connect, redis.Nil miss handling).
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend builds a RedisBackend. Returns nil, nil when cfg has no
// address configured, letting callers treat a disabled Redis the same as
// an absent one.
func NewRedisBackend(cfg config.RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis profile cache ping: %w", err)
	}
	return &RedisBackend{client: client, prefix: "agent_profile:"}, nil
}

func (r *RedisBackend) key(k string) string { return r.prefix + k }

func (r *RedisBackend) Get(ctx context.Context, key string) (any, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v any
	if err := json.Unmarshal([]byte(val), &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), data, ttl).Err()
}

// Close releases the underlying Redis connection.
func (r *RedisBackend) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
