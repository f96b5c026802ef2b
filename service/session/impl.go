package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/config"
	"github.com/smallhouse123/go-analytics/service/redis"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	Service = fx.Provide(New)
)

const (
	TTLKey     = "SESSION_TTL"
	DefaultTTL = 30 * 24 * time.Hour
)

type Params struct {
	fx.In

	Redis  redis.Redis
	Config config.Config
	Logger *zap.Logger
}

type Impl struct {
	store  redis.Redis
	ttl    time.Duration
	logger *zap.Logger
	newID  func() string
}

func New(p Params) Session {
	return &Impl{
		store:  p.Redis,
		ttl:    config.GetDuration(p.Config, TTLKey, DefaultTTL),
		logger: p.Logger,
		newID:  func() string { return uuid.New().String() },
	}
}

func (im *Impl) Resolve(ctx context.Context, scope string) (string, error) {
	key := Key(scope)

	id, err := im.lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	candidate := im.newID()
	created, err := im.store.SetNX(ctx, key, []byte(candidate), im.ttl)
	if err != nil {
		return "", errors.Wrapf(err, "store session %s", key)
	}
	if created {
		im.logger.Debug("session created", zap.String("key", key), zap.String("session_id", candidate))
		return candidate, nil
	}

	// another resolver won the race, use its id
	id, err = im.lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.Errorf("session %s vanished after concurrent create", key)
	}
	return id, nil
}

// lookup returns the stored id and slides its expiry, or "" when there is none.
func (im *Impl) lookup(ctx context.Context, key string) (string, error) {
	val, err := im.store.Get(ctx, key)
	if err == redis.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "load session %s", key)
	}

	if err := im.store.Expire(ctx, key, im.ttl); err != nil && err != redis.ErrExpireNotExistOrTimeout {
		im.logger.Warn("failed to refresh session ttl", zap.String("key", key), zap.Error(err))
	}
	return string(val), nil
}

func (im *Impl) Reset(ctx context.Context, scope string) error {
	if _, err := im.store.Del(ctx, Key(scope)); err != nil {
		return errors.Wrapf(err, "reset session %s", Key(scope))
	}
	return nil
}
