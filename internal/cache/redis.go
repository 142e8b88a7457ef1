package cache

import (
	"context"
	"fmt"
	"time"

	"websocket-service/internal/ports"

	"github.com/go-redis/redis/v8"
)

var _ ports.MessageHistory = (*RedisHistory)(nil)

const historyKey = "ws:history"

// RedisHistory stores recent messages in a capped Redis list, newest first.
type RedisHistory struct {
	client redis.Cmdable
	closer func() error
	key    string
	size   int
	ttl    time.Duration
}

func NewRedisHistory(addr string, password string, db int, size int, ttl time.Duration) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	h := newRedisHistory(client, size, ttl)
	h.closer = client.Close
	return h, nil
}

func newRedisHistory(client redis.Cmdable, size int, ttl time.Duration) *RedisHistory {
	return &RedisHistory{
		client: client,
		closer: func() error { return nil },
		key:    historyKey,
		size:   size,
		ttl:    ttl,
	}
}

func (h *RedisHistory) Append(ctx context.Context, payload []byte) error {
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, h.key, payload)
		pipe.LTrim(ctx, h.key, 0, int64(h.size-1))
		pipe.Expire(ctx, h.key, h.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > h.size {
		n = h.size
	}

	vals, err := h.client.LRange(ctx, h.key, 0, int64(n-1)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	// stored newest first
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[len(vals)-1-i] = []byte(v)
	}
	return out, nil
}

func (h *RedisHistory) Close() error {
	return h.closer()
}
