package database

import (
	"context"
	"iter"

	"github.com/korjavin/commitquizbot/models"
)

// StreakRow is one leaderboard candidate within a chat.
type StreakRow struct {
	Streak      models.Streak
	DisplayName string
	Timezone    string
}

// StreakRows streams the streaks of a chat's members ordered by best streak
// descending, then current streak descending, then user ID ascending.
// Rows are read lazily; the query is closed when iteration stops.
// The caller must not use the store from inside the loop body.
func (db *DB) StreakRows(ctx context.Context, chatID int64) iter.Seq2[StreakRow, error] {
	return func(yield func(StreakRow, error) bool) {
		rows, err := db.conn.QueryContext(ctx, `
			SELECT s.user_id, s.current_streak, s.best_streak, s.last_day,
			       c.display_name, COALESCE(u.timezone, '')
			FROM streaks s
			JOIN user_chats c ON c.user_id = s.user_id AND c.chat_id = ?
			LEFT JOIN users u ON u.user_id = s.user_id
			WHERE s.best_streak > 0
			ORDER BY s.best_streak DESC, s.current_streak DESC, s.user_id ASC
		`, chatID)
		if err != nil {
			yield(StreakRow{}, unavailable("query streaks", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r StreakRow
			if err := rows.Scan(&r.Streak.UserID, &r.Streak.Current, &r.Streak.Best, &r.Streak.LastDay, &r.DisplayName, &r.Timezone); err != nil {
				yield(StreakRow{}, unavailable("scan streak", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(StreakRow{}, unavailable("query streaks", err))
		}
	}
}
