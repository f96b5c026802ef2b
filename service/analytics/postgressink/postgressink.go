package postgressink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/analytics"
	"go.uber.org/zap"
)

const (
	Name         = "postgres"
	DefaultTable = "analytics_events"

	driverName = "postgres"
)

var (
	ErrInvalidTable = errors.New("invalid table name")

	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type Sink struct {
	db     *sql.DB
	insert string
	logger *zap.Logger
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns/2 + 1)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return db, nil
}

// New returns a sink inserting into table, which may be schema qualified.
func New(db *sql.DB, table string, logger *zap.Logger) (*Sink, error) {
	if table == "" {
		table = DefaultTable
	}
	quoted, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	return &Sink{
		db: db,
		insert: fmt.Sprintf(
			"INSERT INTO %s (event_type, event_data, page_url, user_agent, session_id) VALUES ($1, $2, $3, $4, $5)",
			quoted,
		),
		logger: logger.Named("postgressink"),
	}, nil
}

func quoteTable(table string) (string, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	for i, part := range parts {
		if !identifierPattern.MatchString(part) {
			return "", fmt.Errorf("%w: %q", ErrInvalidTable, table)
		}
		parts[i] = pq.QuoteIdentifier(part)
	}
	return strings.Join(parts, "."), nil
}

func (s *Sink) Name() string {
	return Name
}

// Write inserts the batch in a single transaction. Any failure rolls back the whole batch.
func (s *Sink) Write(ctx context.Context, events []analytics.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, event := range events {
		data, err := event.DataJSON()
		if err != nil {
			return fmt.Errorf("failed to encode event %d: %w", i, err)
		}
		_, err = stmt.ExecContext(ctx,
			string(event.Type),
			string(data),
			event.PageURL,
			event.UserAgent,
			event.SessionID,
		)
		if err != nil {
			s.logger.Error("failed to insert event in batch",
				zap.Int("index", i),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("batch inserted", zap.Int("count", len(events)))
	return nil
}
