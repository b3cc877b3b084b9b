package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agitter/manubot/internal/database"
)

// PgStore is a Store backed by the cache_entries table in PostgreSQL. It
// lets several machines share one request cache.
type PgStore struct {
	db      database.DBTX
	onClose func()
}

// NewPgStore creates a PostgreSQL store. The schema must already be
// migrated (see database.Migrator).
func NewPgStore(db database.DBTX) *PgStore {
	return &PgStore{db: db}
}

// Get returns the bytes stored under fingerprint.
func (s *PgStore) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	query := `SELECT payload FROM cache_entries WHERE fingerprint = $1`

	var payload []byte
	if err := s.db.QueryRow(ctx, query, fingerprint).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return payload, true, nil
}

// Put upserts data under fingerprint.
func (s *PgStore) Put(ctx context.Context, fingerprint string, data []byte) error {
	query := `
		INSERT INTO cache_entries (fingerprint, payload, stored_at)
		VALUES ($1, $2, now())
		ON CONFLICT (fingerprint) DO UPDATE SET
			payload = EXCLUDED.payload,
			stored_at = EXCLUDED.stored_at`

	if _, err := s.db.Exec(ctx, query, fingerprint, data); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (s *PgStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Close releases the pool when the store was created by Open. A store
// built with NewPgStore leaves the pool to its owner.
func (s *PgStore) Close() error {
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
