package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collabdoc/pkg/logger"

	_ "github.com/lib/pq"
)

const retryDelay = 2 * time.Second

// Connect opens a Postgres pool and waits until it answers a ping.
func Connect(ctx context.Context, url string, retries int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := ping(ctx, db, retries, retryDelay); err != nil {
		db.Close()
		return nil, err
	}
	logger.Sugar.Info("Successfully connected to the database")
	return db, nil
}

func ping(ctx context.Context, db *sql.DB, retries int, delay time.Duration) error {
	if retries < 1 {
		retries = 1
	}
	var err error
	for i := 0; i < retries; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("could not connect to database after %d attempts: %w", retries, err)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		revision INTEGER NOT NULL,
		status TEXT NOT NULL,
		approval_score INTEGER NOT NULL DEFAULT 0,
		classification_level INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS revisions (
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		from_revision INTEGER NOT NULL,
		to_revision INTEGER NOT NULL,
		patch TEXT NOT NULL,
		author TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (document_id, to_revision)
	)`,
	`CREATE TABLE IF NOT EXISTS flags (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		flag_type TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		net_votes INTEGER NOT NULL DEFAULT 0,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		approved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS flags_document_id_idx ON flags (document_id)`,
	`CREATE INDEX IF NOT EXISTS documents_status_created_idx ON documents (status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS flag_votes (
		flag_id TEXT NOT NULL REFERENCES flags(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		vote SMALLINT NOT NULL CHECK (vote IN (-1, 1)),
		PRIMARY KEY (flag_id, user_id)
	)`,
}

// Migrate creates any missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
