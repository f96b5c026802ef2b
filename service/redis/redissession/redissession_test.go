package redissession

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/smallhouse123/go-analytics/service/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func newParams(t *testing.T, settings map[string]interface{}) (Params, *fxtest.Lifecycle) {
	t.Helper()
	lc := fxtest.NewLifecycle(t)
	return Params{
		Config:    config.NewFromMap("test", map[string]interface{}{"test": settings}),
		Logger:    zap.NewNop(),
		Lifecycle: lc,
	}, lc
}

func TestNewRedisSession(t *testing.T) {
	mr := miniredis.RunT(t)
	p, lc := newParams(t, map[string]interface{}{AddressKey: mr.Addr()})

	r, err := NewRedisSession(p)
	require.NoError(t, err)
	assert.Equal(t, "redisSession", r.Name())

	lc.RequireStart()
	ok, err := r.SetNX(context.Background(), "k", []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("k"))

	lc.RequireStop()
	_, err = r.Get(context.Background(), "k")
	assert.Error(t, err, "client closed on stop")
}

func TestNewRedisSessionRequiresAddress(t *testing.T) {
	p, _ := newParams(t, map[string]interface{}{})

	_, err := NewRedisSession(p)
	assert.EqualError(t, err, "SESSION_REDIS_ADDRESS is not configured")
}

func TestNewRedisSessionUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	p, _ := newParams(t, map[string]interface{}{AddressKey: addr})
	_, err = NewRedisSession(p)
	assert.Error(t, err)
}
