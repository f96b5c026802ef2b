package redissession

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/config"
	redisService "github.com/smallhouse123/go-analytics/service/redis"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	Service = fx.Provide(NewRedisSession)
)

const (
	AddressKey  = "SESSION_REDIS_ADDRESS"
	UsernameKey = "SESSION_REDIS_USERNAME"
	PasswordKey = "SESSION_REDIS_PASSWORD"
	ClusterKey  = "SESSION_REDIS_CLUSTER"
)

type Params struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// NewRedisSession connects to the redis holding analytics session ids.
// SESSION_REDIS_ADDRESS may list several comma separated nodes in cluster mode.
func NewRedisSession(p Params) (redisService.Redis, error) {
	addr := config.GetString(p.Config, AddressKey, "")
	if addr == "" {
		return nil, errors.Errorf("%s is not configured", AddressKey)
	}
	username := config.GetString(p.Config, UsernameKey, "")
	password := config.GetString(p.Config, PasswordKey, "")

	ctx := context.Background()
	var r redisService.Redis
	if config.GetBool(p.Config, ClusterKey, false) {
		client, err := redisService.ConnectRedisCluster(ctx, strings.Split(addr, ","), username, password, p.Logger)
		if err != nil {
			return nil, err
		}
		r = redisService.New("redisSession", client, p.Logger)
	} else {
		client, err := redisService.ConnectRedis(ctx, addr, username, password, p.Logger)
		if err != nil {
			return nil, err
		}
		r = redisService.New("redisSession", client, p.Logger)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return r.Close()
		},
	})
	return r, nil
}
