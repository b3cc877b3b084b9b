package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agitter/manubot/internal/config"
	"github.com/agitter/manubot/internal/database"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/observability"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// MemoryLocation selects the in-memory store.
const MemoryLocation = ":memory:"

// DefaultFileName is the SQLite file created inside a cache directory.
const DefaultFileName = "requests-cache.sqlite"

// OpenOptions configures Open.
type OpenOptions struct {
	// Database sizes the pool for a PostgreSQL location.
	Database *config.DatabaseConfig
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// Open creates a Cache for location:
//
//   - "" or ":memory:" keeps entries in memory for this process only.
//   - a postgres:// or postgresql:// URL uses a shared PostgreSQL table,
//     migrating the schema first when configured to.
//   - an existing directory, or a path ending in a separator, holds a
//     requests-cache.sqlite file.
//   - any other path is a SQLite file.
//
// A store that cannot be opened degrades rather than failing: an unreadable
// SQLite file is moved aside and recreated, and when that also fails, or
// PostgreSQL is unreachable, the cache falls back to memory with a warning.
func Open(ctx context.Context, location string, opts OpenOptions) *Cache {
	logger := opts.Logger.With().Str("component", "cache").Logger()
	cacheOpts := []Option{WithLogger(opts.Logger), WithMetrics(opts.Metrics)}

	memory := func() *Cache {
		return New(NewMemoryStore(), append(cacheOpts, WithBackendName(BackendMemory))...)
	}

	switch {
	case location == "" || location == MemoryLocation:
		return memory()

	case config.IsPostgresLocation(location):
		store, err := openPostgres(ctx, location, opts)
		if err != nil {
			logger.Warn().Err(err).Msg("PostgreSQL cache unavailable, using in-memory cache")
			return memory()
		}
		return New(store, append(cacheOpts, WithBackendName(BackendPostgres))...)
	}

	path := SQLitePath(location)
	store, err := openSQLiteRecovering(ctx, path, logger)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("SQLite cache unavailable, using in-memory cache")
		return memory()
	}
	return New(store, append(cacheOpts, WithBackendName(BackendSQLite))...)
}

// SQLitePath resolves a directory location to the cache file inside it.
func SQLitePath(location string) string {
	if strings.HasSuffix(location, string(os.PathSeparator)) || strings.HasSuffix(location, "/") {
		return filepath.Join(location, DefaultFileName)
	}
	if info, err := os.Stat(location); err == nil && info.IsDir() {
		return filepath.Join(location, DefaultFileName)
	}
	return location
}

func openSQLiteRecovering(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	store, err := OpenSQLite(ctx, path)
	if err == nil {
		return store, nil
	}

	aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
	logger.Warn().
		Err(&domain.CacheCorruptionError{Cause: err}).
		Str("path", path).
		Str("moved_to", aside).
		Msg("unreadable cache file moved aside")
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return nil, fmt.Errorf("moving corrupt cache aside: %w", renameErr)
	}
	return OpenSQLite(ctx, path)
}

func openPostgres(ctx context.Context, dsn string, opts OpenOptions) (*PgStore, error) {
	db, err := database.New(ctx, dsn, opts.Database, opts.Logger)
	if err != nil {
		return nil, err
	}

	if opts.Database == nil || opts.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, opts.Logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		upErr := migrator.Up()
		closeErr := migrator.Close()
		if upErr != nil {
			db.Close()
			return nil, upErr
		}
		if closeErr != nil {
			opts.Logger.Debug().Err(closeErr).Msg("closing migrator")
		}
	}

	store := NewPgStore(db)
	store.onClose = db.Close
	return store, nil
}
