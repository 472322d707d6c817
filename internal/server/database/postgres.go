package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations are applied in order and recorded in schema_migrations.
// Parent references carry no ON DELETE CASCADE; the service layer deletes a
// whole subtree explicitly in one transaction.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_hierarchy",
		SQL: `
			CREATE TABLE IF NOT EXISTS owners (
				owner_id   VARCHAR(128) PRIMARY KEY,
				created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS folders (
				id         VARCHAR(36)  PRIMARY KEY,
				owner_id   VARCHAR(128) NOT NULL,
				name       VARCHAR(255) NOT NULL CHECK (name <> ''),
				parent_id  VARCHAR(36)  REFERENCES folders(id),
				created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				CHECK (parent_id IS NULL OR parent_id <> id)
			);
			CREATE INDEX IF NOT EXISTS idx_folders_owner_parent ON folders(owner_id, parent_id);
			CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

			CREATE TABLE IF NOT EXISTS files (
				id          VARCHAR(36)   PRIMARY KEY,
				owner_id    VARCHAR(128)  NOT NULL,
				name        VARCHAR(255)  NOT NULL,
				size        BIGINT        NOT NULL CHECK (size >= 0),
				category    VARCHAR(16)   NOT NULL DEFAULT 'other',
				folder_id   VARCHAR(36)   REFERENCES folders(id),
				uploaded_at TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
				blob_key    VARCHAR(1024) NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_files_owner_folder ON files(owner_id, folder_id);
			CREATE INDEX IF NOT EXISTS idx_files_owner_uploaded_at ON files(owner_id, uploaded_at);
		`,
	},
	{
		Version: "000002_blob_key_text",
		SQL:     `ALTER TABLE files ALTER COLUMN blob_key TYPE TEXT;`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens a connection pool and verifies it with a ping.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// migrationLock is the advisory lock key held while a migration is applied,
// so servers starting together apply each version once.
const migrationLock int64 = 0x64726976

// RunMigrations applies all pending migrations, each in its own transaction.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	ran := 0
	for _, m := range migrations {
		applied, err := db.applyMigration(ctx, m.Version, m.SQL)
		if err != nil {
			return err
		}
		if applied {
			ran++
			slog.Info("applied migration", "version", m.Version)
		}
	}
	slog.Debug("migrations up to date", "applied", ran, "known", len(migrations))
	return nil
}

// applyMigration runs one migration unless it is already recorded. It reports
// whether the migration was applied by this call.
func (db *DB) applyMigration(ctx context.Context, version, sql string) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for migration %s: %w", version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
		return false, fmt.Errorf("failed to lock migrations: %w", err)
	}

	var done bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&done); err != nil {
		return false, fmt.Errorf("failed to check migration status for %s: %w", version, err)
	}
	if done {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("failed to execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return false, fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return true, nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
