package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/korjavin/commitquizbot/models"
)

// UpdateDay loads the (user, day) progress row and the user's streak row inside
// one transaction, lets fn mutate them, and writes both back. Missing rows are
// passed to fn zero-valued. If fn returns an error nothing is written.
func (db *DB) UpdateDay(ctx context.Context, userID int64, day string, fn func(p *models.DailyProgress, s *models.Streak) error) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := getProgress(ctx, tx, userID, day)
		if err != nil {
			return err
		}
		s, err := getStreak(ctx, tx, userID)
		if err != nil {
			return err
		}

		prevProgress, prevStreak := *p, *s
		if err := fn(p, s); err != nil {
			return err
		}

		if !sameProgress(prevProgress, *p) {
			if err := putProgress(ctx, tx, p); err != nil {
				return err
			}
		}
		if prevStreak != *s {
			return putStreak(ctx, tx, s)
		}
		return nil
	})
}

// GetProgress returns the progress for (user, day); a zero record if none exists.
func (db *DB) GetProgress(ctx context.Context, userID int64, day string) (*models.DailyProgress, error) {
	return getProgress(ctx, db.conn, userID, day)
}

// GetStreak returns the user's streak; a zero record if none exists.
func (db *DB) GetStreak(ctx context.Context, userID int64) (*models.Streak, error) {
	return getStreak(ctx, db.conn, userID)
}

// MarkCommitTriggered flips commit_triggered for a completed day. It reports
// false when the day is not complete or the flag was already set.
func (db *DB) MarkCommitTriggered(ctx context.Context, userID int64, day string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE daily_progress SET commit_triggered = 1
		WHERE user_id = ? AND day = ? AND completed_at IS NOT NULL AND commit_triggered = 0
	`, userID, day)
	if err != nil {
		return false, unavailable("mark commit triggered", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("mark commit triggered", err)
	}
	return n == 1, nil
}

// ListOwedCommits returns completed days on or after sinceDay whose commit batch has not landed.
func (db *DB) ListOwedCommits(ctx context.Context, sinceDay string) ([]models.OwedCommit, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, day FROM daily_progress
		WHERE commit_triggered = 0 AND completed_at IS NOT NULL AND day >= ?
		ORDER BY day, user_id
	`, sinceDay)
	if err != nil {
		return nil, unavailable("list owed commits", err)
	}
	defer rows.Close()

	var owed []models.OwedCommit
	for rows.Next() {
		var o models.OwedCommit
		if err := rows.Scan(&o.UserID, &o.Day); err != nil {
			return nil, unavailable("scan owed commit", err)
		}
		owed = append(owed, o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list owed commits", err)
	}
	return owed, nil
}

func sameProgress(a, b models.DailyProgress) bool {
	if (a.CompletedAt == nil) != (b.CompletedAt == nil) {
		return false
	}
	if a.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt) {
		return false
	}
	a.CompletedAt, b.CompletedAt = nil, nil
	return a == b
}

func getProgress(ctx context.Context, q queryer, userID int64, day string) (*models.DailyProgress, error) {
	p := &models.DailyProgress{UserID: userID, Day: day}
	var completedAt sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT answered_mask, correct_mask, completed_at, streak_applied, commit_triggered
		FROM daily_progress WHERE user_id = ? AND day = ?
	`, userID, day).Scan(&p.AnsweredMask, &p.CorrectMask, &completedAt, &p.StreakApplied, &p.CommitTriggered)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, unavailable("get progress", err)
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		p.CompletedAt = &t
	}
	return p, nil
}

func putProgress(ctx context.Context, q queryer, p *models.DailyProgress) error {
	var completedAt any
	if p.CompletedAt != nil {
		completedAt = p.CompletedAt.Unix()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO daily_progress (user_id, day, answered_mask, correct_mask, completed_at, streak_applied, commit_triggered)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			answered_mask = excluded.answered_mask,
			correct_mask = excluded.correct_mask,
			completed_at = excluded.completed_at,
			streak_applied = excluded.streak_applied,
			commit_triggered = excluded.commit_triggered
	`, p.UserID, p.Day, p.AnsweredMask, p.CorrectMask, completedAt, p.StreakApplied, p.CommitTriggered)
	if err != nil {
		return unavailable("put progress", err)
	}
	return nil
}

func getStreak(ctx context.Context, q queryer, userID int64) (*models.Streak, error) {
	s := &models.Streak{UserID: userID}
	err := q.QueryRowContext(ctx, `
		SELECT current_streak, best_streak, last_day FROM streaks WHERE user_id = ?
	`, userID).Scan(&s.Current, &s.Best, &s.LastDay)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return nil, unavailable("get streak", err)
	}
	return s, nil
}

func putStreak(ctx context.Context, q queryer, s *models.Streak) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO streaks (user_id, current_streak, best_streak, last_day)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			best_streak = excluded.best_streak,
			last_day = excluded.last_day
	`, s.UserID, s.Current, s.Best, s.LastDay)
	if err != nil {
		return unavailable("put streak", err)
	}
	return nil
}
