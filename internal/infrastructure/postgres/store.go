package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type kvRow struct {
	Value   []byte        `db:"value"`
	Counter sql.NullInt64 `db:"counter"`
}

// PostgresStore keeps cache entries and counters in the kv_entries table.
// Expired rows are filtered on read and removed by PurgeExpired.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value, counter FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`

	var row kvRow
	err := s.db.GetContext(ctx, &row, query, key, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, s.handlePostgreSQLError(err, "get entry")
	}

	if row.Value == nil && row.Counter.Valid {
		return []byte(strconv.FormatInt(row.Counter.Int64, 10)), true, nil
	}

	return row.Value, true, nil
}

func (s *PostgresStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `
		INSERT INTO kv_entries (key, value, counter, expires_at)
		VALUES ($1, $2, NULL, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, counter = NULL, expires_at = EXCLUDED.expires_at
	`

	if _, err := s.db.ExecContext(ctx, query, key, value, s.now().UTC().Add(ttl)); err != nil {
		return s.handlePostgreSQLError(err, "set entry")
	}

	return nil
}

func (s *PostgresStore) Incr(ctx context.Context, key string) (int64, error) {
	query := `
		INSERT INTO kv_entries (key, counter)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE
		SET counter = COALESCE(kv_entries.counter, 0) + 1
		RETURNING counter
	`

	var n int64
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&n); err != nil {
		return 0, s.handlePostgreSQLError(err, "increment counter")
	}

	slog.Debug("Counter incremented", "key", key, "new_count", n)
	return n, nil
}

// PurgeExpired deletes rows whose expiry has passed and returns how many were removed
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= $1`

	result, err := s.db.ExecContext(ctx, query, s.now().UTC())
	if err != nil {
		return 0, s.handlePostgreSQLError(err, "purge expired entries")
	}

	return result.RowsAffected()
}

// handlePostgreSQLError converts PostgreSQL-specific errors to descriptive errors
func (s *PostgresStore) handlePostgreSQLError(err error, operation string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		slog.Error("PostgreSQL error",
			"operation", operation,
			"code", pqErr.Code,
			"message", pqErr.Message,
			"detail", pqErr.Detail,
		)

		switch pqErr.Code.Class() {
		case "08": // connection exception
			return fmt.Errorf("%s: database connection error: %w", operation, err)
		case "57": // operator intervention, e.g. admin shutdown
			return fmt.Errorf("%s: database unavailable: %w", operation, err)
		default:
			return fmt.Errorf("%s: database error [%s]: %w", operation, pqErr.Code, err)
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database connection is nil")
	}
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
