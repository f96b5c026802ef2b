package clickhousesink

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/analytics"
	"go.uber.org/zap"
)

const (
	Name         = "clickhouse"
	DefaultTable = "analytics_events"
)

var (
	ErrInvalidTable = errors.New("invalid table name")

	tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// Conn is the part of clickhouse.Conn the sink needs.
type Conn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

type Options struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// Open dials the native protocol with LZ4 compression and pings the server.
func Open(ctx context.Context, opts Options) (clickhouse.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "go-analytics", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open clickhouse")
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ping clickhouse")
	}
	return conn, nil
}

type Sink struct {
	conn   Conn
	insert string
	logger *zap.Logger
}

func New(conn Conn, table string, logger *zap.Logger) (*Sink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &Sink{
		conn:   conn,
		insert: "INSERT INTO " + table + " (event_type, event_data, page_url, user_agent, session_id, recorded_at)",
		logger: logger.Named("clickhousesink"),
	}, nil
}

func (s *Sink) Name() string {
	return Name
}

// Write sends the events as one native batch. A failed append aborts the whole batch.
func (s *Sink) Write(ctx context.Context, events []analytics.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for i, event := range events {
		data, err := event.DataJSON()
		if err == nil {
			err = batch.Append(
				string(event.Type),
				string(data),
				event.PageURL,
				event.UserAgent,
				event.SessionID,
				event.RecordedAt,
			)
		}
		if err != nil {
			if abortErr := batch.Abort(); abortErr != nil {
				s.logger.Warn("failed to abort batch", zap.Error(abortErr))
			}
			return fmt.Errorf("failed to append event %d to batch: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("batch inserted", zap.Int("count", len(events)))
	return nil
}
