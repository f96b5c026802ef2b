package sink

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/analytics"
	"github.com/smallhouse123/go-analytics/service/analytics/clickhousesink"
	"github.com/smallhouse123/go-analytics/service/analytics/filesink"
	"github.com/smallhouse123/go-analytics/service/analytics/postgressink"
	"github.com/smallhouse123/go-analytics/service/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	Service = fx.Provide(New)
)

const (
	SinkKey               = "ANALYTICS_SINK"
	TableKey              = "ANALYTICS_TABLE"
	PostgresDSNKey        = "POSTGRES_DSN"
	PostgresMaxConnsKey   = "POSTGRES_MAX_CONNS"
	ClickHouseAddrKey     = "CLICKHOUSE_ADDR"
	ClickHouseDBKey       = "CLICKHOUSE_DB"
	ClickHouseUserKey     = "CLICKHOUSE_USER"
	ClickHousePasswordKey = "CLICKHOUSE_PASSWORD"
	FileDirKey            = "FILE_SINK_DIR"

	connectTimeout = 10 * time.Second
)

type Params struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// New opens the sink named by ANALYTICS_SINK. Its connection is closed when the app stops.
func New(p Params) (analytics.Sink, error) {
	kind := strings.ToLower(config.GetString(p.Config, SinkKey, postgressink.Name))
	table := config.GetString(p.Config, TableKey, "")

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var (
		s      analytics.Sink
		closer func() error
	)
	switch kind {
	case postgressink.Name:
		dsn := config.GetString(p.Config, PostgresDSNKey, "")
		if dsn == "" {
			return nil, errors.Errorf("%s is not configured", PostgresDSNKey)
		}
		db, err := postgressink.Open(ctx, dsn, config.GetInt(p.Config, PostgresMaxConnsKey, 4))
		if err != nil {
			return nil, err
		}
		if s, err = postgressink.New(db, table, p.Logger); err != nil {
			db.Close()
			return nil, err
		}
		closer = db.Close
	case clickhousesink.Name:
		addr := config.GetString(p.Config, ClickHouseAddrKey, "")
		if addr == "" {
			return nil, errors.Errorf("%s is not configured", ClickHouseAddrKey)
		}
		conn, err := clickhousesink.Open(ctx, clickhousesink.Options{
			Addr:     strings.Split(addr, ","),
			Database: config.GetString(p.Config, ClickHouseDBKey, "default"),
			Username: config.GetString(p.Config, ClickHouseUserKey, "default"),
			Password: config.GetString(p.Config, ClickHousePasswordKey, ""),
		})
		if err != nil {
			return nil, err
		}
		if s, err = clickhousesink.New(conn, table, p.Logger); err != nil {
			conn.Close()
			return nil, err
		}
		closer = conn.Close
	case filesink.Name:
		fs, err := filesink.New(config.GetString(p.Config, FileDirKey, ""), p.Logger)
		if err != nil {
			return nil, err
		}
		s, closer = fs, fs.Close
	default:
		return nil, errors.Errorf("unknown %s %q", SinkKey, kind)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closer()
		},
	})
	p.Logger.Info("analytics sink ready", zap.String("sink", s.Name()))
	return s, nil
}
