package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisTest(t *testing.T) (Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := ConnectRedis(context.Background(), mr.Addr(), "", "", zap.NewNop())
	require.NoError(t, err)

	r := New("test", client, zap.NewNop())
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestConnectRedisFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = ConnectRedis(context.Background(), addr, "", "", zap.NewNop())
	assert.Error(t, err)
}

func TestGetMissingKey(t *testing.T) {
	r, _ := setupRedisTest(t)

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNXAndGet(t *testing.T) {
	r, mr := setupRedisTest(t)
	ctx := context.Background()

	ok, err := r.SetNX(ctx, "analytics_session_id", []byte("first"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SetNX(ctx, "analytics_session_id", []byte("second"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := r.Get(ctx, "analytics_session_id")
	require.NoError(t, err)
	assert.Equal(t, "first", string(val))
	assert.Equal(t, time.Hour, mr.TTL("analytics_session_id"))
}

func TestSetNXForeverHasNoTTL(t *testing.T) {
	r, mr := setupRedisTest(t)

	ok, err := r.SetNX(context.Background(), "k", []byte("v"), Forever)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestExpire(t *testing.T) {
	r, mr := setupRedisTest(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.Expire(ctx, "missing", time.Minute), ErrExpireNotExistOrTimeout)

	require.NoError(t, mr.Set("k", "v"))
	require.NoError(t, r.Expire(ctx, "k", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, r.Expire(ctx, "k", Forever))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestDel(t *testing.T) {
	r, mr := setupRedisTest(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "2"))

	n, err := r.Del(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("a"))

	_, err = r.Del(ctx)
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	r := New("redisSession", client, zap.NewNop())
	defer r.Close()

	assert.Equal(t, "redisSession", r.Name())
}
