package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreUnavailable is returned when the database cannot be opened, read or written.
var ErrStoreUnavailable = errors.New("store unavailable")

// DB handles all database operations
type DB struct {
	conn *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// New opens the SQLite database at dbPath, creating it and its tables if needed.
func New(ctx context.Context, dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable("create db dir", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}
	// One connection serializes every writer; each read-modify-write runs in a single tx on it.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, unavailable("ping sqlite", err)
	}

	if err := createTables(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, unavailable("migrate", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn inside a SQL transaction. Errors returned by fn are passed through unchanged.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit tx", err)
	}
	committed = true
	return nil
}

// createTables creates the necessary tables if they don't exist
func createTables(ctx context.Context, conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			github_username TEXT NOT NULL DEFAULT '',
			timezone TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_chats (
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (chat_id, user_id),
			FOREIGN KEY (user_id) REFERENCES users(user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_progress (
			user_id INTEGER NOT NULL,
			day TEXT NOT NULL,
			answered_mask INTEGER NOT NULL DEFAULT 0 CHECK (answered_mask BETWEEN 0 AND 31),
			correct_mask INTEGER NOT NULL DEFAULT 0 CHECK (correct_mask BETWEEN 0 AND 31),
			completed_at INTEGER,
			streak_applied INTEGER NOT NULL DEFAULT 0,
			commit_triggered INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day),
			CHECK (commit_triggered = 0 OR completed_at IS NOT NULL)
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			user_id INTEGER PRIMARY KEY,
			current_streak INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			last_day TEXT NOT NULL DEFAULT '',
			CHECK (best_streak >= current_streak)
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			user_id INTEGER PRIMARY KEY,
			chat_id INTEGER NOT NULL,
			hour INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
			minute INTEGER NOT NULL CHECK (minute BETWEEN 0 AND 59),
			timezone TEXT NOT NULL,
			next_fire INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			user_id INTEGER PRIMARY KEY,
			correct INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_owed ON daily_progress(commit_triggered, day)`,
		`CREATE INDEX IF NOT EXISTS idx_streaks_rank ON streaks(best_streak DESC, current_streak DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
