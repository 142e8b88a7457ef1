package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisHistoryUnreachable(t *testing.T) {
	_, err := NewRedisHistory("127.0.0.1:1", "", 0, 10, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestRecentNonPositive(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	h := newRedisHistory(client, 10, time.Minute)
	msgs, err := h.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, msgs)
	assert.NoError(t, h.Close())
}

func TestAppendSurfacesErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	h := newRedisHistory(client, 10, time.Minute)
	err := h.Append(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append history")
}

func newMiniredisHistory(t *testing.T, size int, ttl time.Duration) (*RedisHistory, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	h, err := NewRedisHistory(mr.Addr(), "", 0, size, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, mr
}

func TestAppendCapsHistory(t *testing.T) {
	const size = 4
	h, mr := newMiniredisHistory(t, size, time.Minute)
	ctx := context.Background()

	for i := 0; i < size+2; i++ {
		require.NoError(t, h.Append(ctx, []byte(fmt.Sprintf("msg-%d", i))))
	}

	stored, err := mr.List(historyKey)
	require.NoError(t, err)
	assert.Len(t, stored, size)
	assert.Equal(t, time.Minute, mr.TTL(historyKey))

	msgs, err := h.Recent(ctx, size)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{
		[]byte("msg-2"),
		[]byte("msg-3"),
		[]byte("msg-4"),
		[]byte("msg-5"),
	}, msgs)
}

func TestRecentReturnsNewestOldestFirst(t *testing.T) {
	h, _ := newMiniredisHistory(t, 10, time.Minute)
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, h.Append(ctx, []byte(m)))
	}

	msgs, err := h.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("b"), []byte("c")}, msgs)
}

func TestRecentClampedToSize(t *testing.T) {
	const size = 3
	h, _ := newMiniredisHistory(t, size, time.Minute)
	ctx := context.Background()

	for i := 0; i < size+2; i++ {
		require.NoError(t, h.Append(ctx, []byte(fmt.Sprintf("msg-%d", i))))
	}

	msgs, err := h.Recent(ctx, size+5)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{
		[]byte("msg-2"),
		[]byte("msg-3"),
		[]byte("msg-4"),
	}, msgs)
}

func TestRecentEmpty(t *testing.T) {
	h, _ := newMiniredisHistory(t, 10, time.Minute)

	msgs, err := h.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
