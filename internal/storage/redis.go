package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/config"
)

// RedisTriggeredSet shares multi-symbol suppression state between replicas.
type RedisTriggeredSet struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ breakthrough.TriggeredSet = (*RedisTriggeredSet)(nil)

// NewRedisClient opens a client and verifies connectivity.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisTriggeredSet stores each alert's set under "<prefix>:triggered:<alert>".
// ttl bounds how long a set survives without updates; zero keeps it forever.
func NewRedisTriggeredSet(client redis.Cmdable, prefix string, ttl time.Duration) *RedisTriggeredSet {
	return &RedisTriggeredSet{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisTriggeredSet) key(alertKey string) string {
	if r.prefix == "" {
		return "triggered:" + alertKey
	}
	return r.prefix + ":triggered:" + alertKey
}

func (r *RedisTriggeredSet) Members(ctx context.Context, alertKey string) (map[string]struct{}, error) {
	members, err := r.client.SMembers(ctx, r.key(alertKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}

func (r *RedisTriggeredSet) Replace(ctx context.Context, alertKey string, symbols []string) error {
	key := r.key(alertKey)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(symbols) == 0 {
			return nil
		}
		members := make([]any, len(symbols))
		for i, s := range symbols {
			members[i] = s
		}
		pipe.SAdd(ctx, key, members...)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace triggered set: %w", err)
	}
	return nil
}
