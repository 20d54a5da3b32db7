package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/korjavin/commitquizbot/models"
)

// TouchUser creates the user on first interaction and records their display
// name for the chat the interaction came from.
func (db *DB) TouchUser(ctx context.Context, userID, chatID int64, displayName string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)",
			userID, time.Now().Unix(),
		); err != nil {
			return unavailable("insert user", err)
		}
		if chatID == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_chats (chat_id, user_id, display_name) VALUES (?, ?, ?)
			ON CONFLICT(chat_id, user_id) DO UPDATE SET
				display_name = CASE WHEN excluded.display_name = '' THEN display_name ELSE excluded.display_name END
		`, chatID, userID, displayName)
		if err != nil {
			return unavailable("upsert user chat", err)
		}
		return nil
	})
}

// GetUser returns the user or nil if they never interacted.
func (db *DB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	var created int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT user_id, github_username, timezone, created_at FROM users WHERE user_id = ?",
		userID,
	).Scan(&u.UserID, &u.GitHubUsername, &u.Timezone, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return &u, nil
}

// SetGitHubUsername stores the username used by the contribution-graph quiz.
func (db *DB) SetGitHubUsername(ctx context.Context, userID int64, username string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (user_id, github_username, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET github_username = excluded.github_username
	`, userID, username, time.Now().Unix())
	if err != nil {
		return unavailable("set github username", err)
	}
	return nil
}

// UserTimezone returns the user's last configured timezone, or "" if none.
func (db *DB) UserTimezone(ctx context.Context, userID int64) (string, error) {
	var tz string
	err := db.conn.QueryRowContext(ctx, "SELECT timezone FROM users WHERE user_id = ?", userID).Scan(&tz)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", unavailable("get user timezone", err)
	}
	return tz, nil
}
