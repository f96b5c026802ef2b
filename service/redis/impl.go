package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Impl struct {
	name   string
	client redis.UniversalClient
	logger *zap.Logger
}

func New(name string, client redis.UniversalClient, logger *zap.Logger) Redis {
	return &Impl{
		name:   name,
		client: client,
		logger: logger.With(zap.String("redis", name)),
	}
}

func (im *Impl) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := im.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != ErrNotFound {
			im.logger.Error("GET redis failed", zap.String("key", key), zap.Error(err))
		}
		return nil, err
	}
	return val, nil
}

func (im *Impl) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	if ttl == Forever {
		ttl = 0
	}

	ok, err := im.client.SetNX(ctx, key, val, ttl).Result()
	if err != nil {
		im.logger.Error("SETNX redis failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return ok, nil
}

func (im *Impl) Expire(ctx context.Context, key string, ttl time.Duration) error {
	var err error
	var val bool

	if ttl == Forever {
		val, err = im.client.Persist(ctx, key).Result()
	} else {
		val, err = im.client.Expire(ctx, key, ttl).Result()
	}

	if err != nil {
		im.logger.Error("EXPIRE redis failed", zap.String("key", key), zap.Error(err))
		return err
	}

	// Return value will be false if key does not exist
	// or does not have an associated timeout.
	if !val {
		return ErrExpireNotExistOrTimeout
	}
	return nil
}

func (im *Impl) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, errors.New("length of keys is 0")
	}

	// Use pipeline to implement multi-key Del to prevent error CROSSSLOT
	pipe := im.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}

	dels, err := pipe.Exec(ctx)
	if err != nil {
		im.logger.Error("DEL redis failed", zap.Strings("keys", keys), zap.Error(err))
		return 0, err
	}

	affected := 0
	for _, del := range dels {
		affected += int(del.(*redis.IntCmd).Val())
	}

	return affected, nil
}

func (im *Impl) Name() string {
	return im.name
}

func (im *Impl) Close() error {
	return im.client.Close()
}
