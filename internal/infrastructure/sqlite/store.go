package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

type kvRow struct {
	Value   []byte        `db:"value"`
	Counter sql.NullInt64 `db:"counter"`
}

// SQLiteStore mirrors the postgres store with expiry kept as unix milliseconds
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return NewSQLiteStoreWithClock(db, time.Now)
}

func NewSQLiteStoreWithClock(db *sqlx.DB, now func() time.Time) *SQLiteStore {
	return &SQLiteStore{db: db, now: now}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := s.db.Rebind(`
		SELECT value, counter FROM kv_entries
		WHERE key = ? AND (expires_at_ms IS NULL OR expires_at_ms > ?)
	`)

	var row kvRow
	err := s.db.GetContext(ctx, &row, query, key, s.now().UnixMilli())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get entry: %w", err)
	}

	if row.Value == nil && row.Counter.Valid {
		return []byte(strconv.FormatInt(row.Counter.Int64, 10)), true, nil
	}

	return row.Value, true, nil
}

func (s *SQLiteStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := s.db.Rebind(`
		INSERT INTO kv_entries (key, value, counter, expires_at_ms)
		VALUES (?, ?, NULL, ?)
		ON CONFLICT (key) DO UPDATE
		SET value = excluded.value, counter = NULL, expires_at_ms = excluded.expires_at_ms
	`)

	if _, err := s.db.ExecContext(ctx, query, key, value, s.now().Add(ttl).UnixMilli()); err != nil {
		return fmt.Errorf("set entry: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	query := s.db.Rebind(`
		INSERT INTO kv_entries (key, counter)
		VALUES (?, 1)
		ON CONFLICT (key) DO UPDATE
		SET counter = COALESCE(kv_entries.counter, 0) + 1
		RETURNING counter
	`)

	var n int64
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}

	return n, nil
}

// PurgeExpired deletes rows whose expiry has passed and returns how many were removed
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	query := s.db.Rebind(`DELETE FROM kv_entries WHERE expires_at_ms IS NOT NULL AND expires_at_ms <= ?`)

	result, err := s.db.ExecContext(ctx, query, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired entries: %w", err)
	}

	return result.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
