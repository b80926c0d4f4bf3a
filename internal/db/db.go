package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Options selects the driver and DSN.
type Options struct {
	Driver string
	DSN    string
}

// Connect opens the database, applies migrations and clears connection rows
// left behind by a previous process.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*sqlx.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "postgres"
	}
	if driver != "postgres" && driver != "pgx" {
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", "driver", driver)

	// A single process owns every live connection, so rows that survived a
	// restart point at sockets that no longer exist.
	res, err := db.ExecContext(ctx, `DELETE FROM connections`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("clear connections: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("cleared stale connections", "count", n)
	}
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username VARCHAR(64) UNIQUE NOT NULL,
            known_as VARCHAR(128) NOT NULL DEFAULT '',
            last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            sender_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            sender_username VARCHAR(64) NOT NULL,
            recipient_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            recipient_username VARCHAR(64) NOT NULL,
            content TEXT NOT NULL,
            date_read TIMESTAMPTZ NULL,
            message_sent TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            sender_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            recipient_deleted BOOLEAN NOT NULL DEFAULT FALSE
        );`,
		`CREATE INDEX IF NOT EXISTS messages_thread_idx ON messages (sender_username, recipient_username, message_sent);`,
		`CREATE TABLE IF NOT EXISTS groups (
            name VARCHAR(140) PRIMARY KEY
        );`,
		`CREATE TABLE IF NOT EXISTS connections (
            connection_id VARCHAR(64) PRIMARY KEY,
            username VARCHAR(64) NOT NULL,
            group_name VARCHAR(140) NOT NULL REFERENCES groups(name) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS connections_group_idx ON connections (group_name);`,
		`CREATE TABLE IF NOT EXISTS likes (
            source_user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            target_user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY(source_user_id, target_user_id)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// SeedUsers inserts the given usernames if they do not exist yet.
func SeedUsers(ctx context.Context, db *sqlx.DB, usernames []string) error {
	for _, name := range usernames {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO users (username, known_as) VALUES ($1, $1) ON CONFLICT (username) DO NOTHING`, name); err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
	}
	return nil
}
