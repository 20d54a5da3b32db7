package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/korjavin/commitquizbot/models"
)

// AddScore records one answer of the contribution-graph quiz.
func (db *DB) AddScore(ctx context.Context, userID int64, correct bool) error {
	c := 0
	if correct {
		c = 1
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO scores (user_id, correct, total) VALUES (?, ?, 1)
		ON CONFLICT(user_id) DO UPDATE SET
			correct = correct + excluded.correct,
			total = total + 1
	`, userID, c)
	if err != nil {
		return unavailable("add score", err)
	}
	return nil
}

// GetScore retrieves the user's contribution-graph quiz tally.
func (db *DB) GetScore(ctx context.Context, userID int64) (*models.Score, error) {
	s := &models.Score{UserID: userID}
	err := db.conn.QueryRowContext(ctx,
		"SELECT correct, total FROM scores WHERE user_id = ?", userID,
	).Scan(&s.Correct, &s.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return nil, unavailable("get score", err)
	}
	return s, nil
}
