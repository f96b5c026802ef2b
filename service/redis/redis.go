package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/extra/rediscensus/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	Forever = time.Duration(-1)
)

var (
	ErrExpireNotExistOrTimeout = errors.New(
		"key does not exist or does not have an associated timeout")

	ErrNotFound = redis.Nil
)

type Redis interface {
	// Get gets the value of a key
	Get(ctx context.Context, key string) (val []byte, err error)

	// SetNX sets key only when it does not exist yet and reports whether it was set.
	SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)

	// Expire set a expire time to a key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Del Removes the specified keys and return the number of keys that were removed.
	// A key is ignored if it does not exist.
	Del(ctx context.Context, keys ...string) (int, error)

	// Name return redis name
	Name() string

	// Close releases the underlying connections
	Close() error
}

func ConnectRedisCluster(ctx context.Context, addrs []string, username, password string, logger *zap.Logger) (*redis.ClusterClient, error) {
	options := &redis.ClusterOptions{
		Addrs:    addrs,
		Username: username,
		Password: password,

		NewClient: func(opt *redis.Options) *redis.Client {
			node := redis.NewClient(opt)
			node.AddHook(rediscensus.NewTracingHook())
			return node
		},

		MaxRetries:      3,
		MinRetryBackoff: 1 * time.Second,
		MaxRetryBackoff: 2 * time.Second,

		DialTimeout:  2 * time.Second,
		ReadTimeout:  1500 * time.Millisecond,
		WriteTimeout: 1500 * time.Millisecond,

		ConnMaxIdleTime: 240 * time.Second,
	}

	rdb := redis.NewClusterClient(options)
	rdb.AddHook(rediscensus.NewTracingHook())

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("fail to connect to redis cluster",
			zap.Strings("redisAddrs", addrs),
			zap.String("redisUser", username),
			zap.Error(err),
		)
		rdb.Close()
		return nil, errors.Wrap(err, "ping redis cluster")
	}

	logger.Info("redis cluster connected", zap.Strings("redisAddrs", addrs))
	return rdb, nil
}

func ConnectRedis(ctx context.Context, addr, username, password string, logger *zap.Logger) (*redis.Client, error) {
	options := &redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       0,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	rdb := redis.NewClient(options)
	rdb.AddHook(rediscensus.NewTracingHook())

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("fail to connect to redis",
			zap.String("redisAddr", addr),
			zap.String("redisUser", username),
			zap.Error(err),
		)
		rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	logger.Info("redis instance connected", zap.String("redisAddr", addr))
	return rdb, nil
}
