package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/config"
	"github.com/smallhouse123/go-analytics/service/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(t *testing.T, cfg map[string]interface{}) (Session, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.ConnectRedis(context.Background(), mr.Addr(), "", "", zap.NewNop())
	require.NoError(t, err)
	r := redis.New("session", client, zap.NewNop())
	t.Cleanup(func() { r.Close() })

	return New(Params{
		Redis:  r,
		Config: config.NewFromMap("test", map[string]interface{}{"test": cfg}),
		Logger: zap.NewNop(),
	}), mr
}

func TestKey(t *testing.T) {
	assert.Equal(t, "analytics_session_id", Key(""))
	assert.Equal(t, "analytics_session_id:tab-1", Key("tab-1"))
}

func TestResolveCreatesAndReuses(t *testing.T) {
	s, mr := newTestSession(t, map[string]interface{}{TTLKey: "1h"})
	ctx := context.Background()

	first, err := s.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Len(t, first, 36)

	stored, err := mr.Get("analytics_session_id")
	require.NoError(t, err)
	assert.Equal(t, first, stored)
	assert.Equal(t, time.Hour, mr.TTL("analytics_session_id"))

	mr.FastForward(30 * time.Minute)

	second, err := s.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Hour, mr.TTL("analytics_session_id"), "reuse slides the expiry")
}

func TestResolveScopesAreIndependent(t *testing.T) {
	s, _ := newTestSession(t, nil)
	ctx := context.Background()

	tabA, err := s.Resolve(ctx, "tab-a")
	require.NoError(t, err)
	tabB, err := s.Resolve(ctx, "tab-b")
	require.NoError(t, err)

	assert.NotEqual(t, tabA, tabB)
}

func TestResolveAfterExpiryStartsNewSession(t *testing.T) {
	s, mr := newTestSession(t, map[string]interface{}{TTLKey: "1m"})
	ctx := context.Background()

	first, err := s.Resolve(ctx, "tab")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	second, err := s.Resolve(ctx, "tab")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestReset(t *testing.T) {
	s, mr := newTestSession(t, nil)
	ctx := context.Background()

	first, err := s.Resolve(ctx, "tab")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "tab"))
	assert.False(t, mr.Exists("analytics_session_id:tab"))

	second, err := s.Resolve(ctx, "tab")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestResolveStoreUnavailable(t *testing.T) {
	s, mr := newTestSession(t, nil)
	mr.Close()

	_, err := s.Resolve(context.Background(), "")
	assert.Error(t, err)
}

// racingRedis reports the key as missing until SetNX, which loses to a concurrent writer.
type racingRedis struct {
	redis.Redis
	winner string
	raced  bool
}

func (r *racingRedis) Get(ctx context.Context, key string) ([]byte, error) {
	if !r.raced {
		return nil, redis.ErrNotFound
	}
	return []byte(r.winner), nil
}

func (r *racingRedis) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	r.raced = true
	return false, nil
}

func (r *racingRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func TestResolveLosesCreateRace(t *testing.T) {
	s := &Impl{
		store:  &racingRedis{winner: "winner-id"},
		ttl:    time.Hour,
		logger: zap.NewNop(),
		newID:  func() string { return "loser-id" },
	}

	id, err := s.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "winner-id", id)
}

type failingRedis struct {
	redis.Redis
}

func (failingRedis) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func TestResolveWrapsStoreErrors(t *testing.T) {
	s := &Impl{store: failingRedis{}, ttl: time.Hour, logger: zap.NewNop()}

	_, err := s.Resolve(context.Background(), "tab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load session analytics_session_id:tab")
}
