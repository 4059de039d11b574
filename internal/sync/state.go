package sync

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const stateKeyLastSync = "last_sync"

const (
	sqlUpsertWatermark = `INSERT INTO watermarks (table_name, remote_modified, synced_at)
		VALUES (?, ?, ?)
		ON CONFLICT(table_name) DO UPDATE SET
		 remote_modified = excluded.remote_modified,
		 synced_at = excluded.synced_at`

	sqlTouchWatermark = `INSERT INTO watermarks (table_name, synced_at)
		VALUES (?, ?)
		ON CONFLICT(table_name) DO UPDATE SET synced_at = excluded.synced_at`

	sqlUpsertState = `INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
)

// Watermark is the persisted sync position of one table.
type Watermark struct {
	Table          string `db:"table_name"      json:"table"`
	RemoteModified string `db:"remote_modified" json:"remote_modified"`
	SyncedAt       string `db:"synced_at"       json:"synced_at"`
}

// StateDB is the local SQLite database holding the pending-mutation ledger,
// per-table watermarks, and the last sync time. It is the sole writer to
// the file: the pool is capped at one connection.
type StateDB struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenState opens (creating if needed) the state database at dbPath and
// brings its schema up to date.
func OpenState(ctx context.Context, dbPath string, logger *slog.Logger) (*StateDB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening state database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	version, err := migrate(ctx, db.DB, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("state database ready",
		slog.String("db_path", dbPath),
		slog.Int64("schema_version", version),
	)

	return &StateDB{db: db, logger: logger}, nil
}

// migrate applies pending embedded migrations and returns the resulting
// schema version.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("sync: migration filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return 0, fmt.Errorf("sync: migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: applying migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("state schema migrated",
			slog.String("source", r.Source.Path),
			slog.Duration("took", r.Duration),
		)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: reading schema version: %w", err)
	}

	return version, nil
}

// Close releases the database.
func (s *StateDB) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sync: closing state database: %w", err)
	}

	return nil
}

// SaveWatermarks records the remote modification time of every table in
// marks, stamping syncedAt. Runs in one transaction.
func (s *StateDB) SaveWatermarks(ctx context.Context, marks map[string]string, syncedAt string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: begin watermark write: %w", err)
	}
	defer tx.Rollback()

	for _, table := range slices.Sorted(maps.Keys(marks)) {
		if _, err := tx.ExecContext(ctx, sqlUpsertWatermark, table, marks[table], syncedAt); err != nil {
			return fmt.Errorf("sync: saving watermark for %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: commit watermarks: %w", err)
	}

	return nil
}

// TouchWatermarks stamps syncedAt on tables without changing their remote
// modification time.
func (s *StateDB) TouchWatermarks(ctx context.Context, tables []string, syncedAt string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: begin watermark write: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, sqlTouchWatermark, table, syncedAt); err != nil {
			return fmt.Errorf("sync: touching watermark for %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: commit watermarks: %w", err)
	}

	return nil
}

// Watermarks lists every recorded table position ordered by table name.
func (s *StateDB) Watermarks(ctx context.Context) ([]Watermark, error) {
	var out []Watermark
	if err := s.db.SelectContext(ctx, &out,
		`SELECT table_name, remote_modified, synced_at FROM watermarks ORDER BY table_name`); err != nil {
		return nil, fmt.Errorf("sync: listing watermarks: %w", err)
	}

	return out, nil
}

// SetLastSync persists the remote time of the latest successful sync.
func (s *StateDB) SetLastSync(ctx context.Context, now string) error {
	if _, err := s.db.ExecContext(ctx, sqlUpsertState, stateKeyLastSync, now); err != nil {
		return fmt.Errorf("sync: saving last sync: %w", err)
	}

	return nil
}

// LastSync returns the persisted last sync time, or "" if none.
func (s *StateDB) LastSync(ctx context.Context) (string, error) {
	var v string

	err := s.db.GetContext(ctx, &v, `SELECT value FROM sync_state WHERE key = ?`, stateKeyLastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("sync: reading last sync: %w", err)
	}

	return v, nil
}
