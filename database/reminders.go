package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/korjavin/commitquizbot/models"
)

// SaveReminder creates or replaces the user's reminder and remembers its
// timezone on the user record, so the daily quiz keeps using it after /unnotify.
func (db *DB) SaveReminder(ctx context.Context, r models.Reminder) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reminders (user_id, chat_id, hour, minute, timezone, next_fire)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				chat_id = excluded.chat_id,
				hour = excluded.hour,
				minute = excluded.minute,
				timezone = excluded.timezone,
				next_fire = excluded.next_fire
		`, r.UserID, r.ChatID, r.Hour, r.Minute, r.Timezone, r.NextFire.Unix()); err != nil {
			return unavailable("save reminder", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (user_id, timezone, created_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET timezone = excluded.timezone
		`, r.UserID, r.Timezone, time.Now().Unix()); err != nil {
			return unavailable("save user timezone", err)
		}
		return nil
	})
}

// DeleteReminder removes the user's reminder and reports whether one existed.
func (db *DB) DeleteReminder(ctx context.Context, userID int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM reminders WHERE user_id = ?", userID)
	if err != nil {
		return false, unavailable("delete reminder", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("delete reminder", err)
	}
	return n > 0, nil
}

// GetReminder returns the user's reminder or nil if none is set.
func (db *DB) GetReminder(ctx context.Context, userID int64) (*models.Reminder, error) {
	r := models.Reminder{UserID: userID}
	var next int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT chat_id, hour, minute, timezone, next_fire FROM reminders WHERE user_id = ?",
		userID,
	).Scan(&r.ChatID, &r.Hour, &r.Minute, &r.Timezone, &next)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get reminder", err)
	}
	r.NextFire = time.Unix(next, 0).UTC()
	return &r, nil
}

// ListReminders returns every persisted reminder.
func (db *DB) ListReminders(ctx context.Context) ([]models.Reminder, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT user_id, chat_id, hour, minute, timezone, next_fire FROM reminders ORDER BY user_id",
	)
	if err != nil {
		return nil, unavailable("list reminders", err)
	}
	defer rows.Close()

	var out []models.Reminder
	for rows.Next() {
		var r models.Reminder
		var next int64
		if err := rows.Scan(&r.UserID, &r.ChatID, &r.Hour, &r.Minute, &r.Timezone, &next); err != nil {
			return nil, unavailable("scan reminder", err)
		}
		r.NextFire = time.Unix(next, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list reminders", err)
	}
	return out, nil
}

// SetNextFire records when the user's reminder fires next. The row is only
// updated while it still holds r's hour, minute and timezone, so a fire of a
// replaced schedule cannot overwrite the new one.
func (db *DB) SetNextFire(ctx context.Context, r models.Reminder) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE reminders SET next_fire = ?
		WHERE user_id = ? AND hour = ? AND minute = ? AND timezone = ?
	`, r.NextFire.Unix(), r.UserID, r.Hour, r.Minute, r.Timezone)
	if err != nil {
		return unavailable("set next fire", err)
	}
	return nil
}
