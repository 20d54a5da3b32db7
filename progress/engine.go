package progress

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/korjavin/commitquizbot/database"
	"github.com/korjavin/commitquizbot/models"
)

// DayLayout is the calendar-day key format.
const DayLayout = "2006-01-02"

// ErrInvalidSlot is returned for a question slot outside 0..DailyQuestions-1.
var ErrInvalidSlot = errors.New("invalid question slot")

// Store is the part of the database the engine needs.
type Store interface {
	UpdateDay(ctx context.Context, userID int64, day string, fn func(p *models.DailyProgress, s *models.Streak) error) error
	GetProgress(ctx context.Context, userID int64, day string) (*models.DailyProgress, error)
	GetStreak(ctx context.Context, userID int64) (*models.Streak, error)
	StreakRows(ctx context.Context, chatID int64) iter.Seq2[database.StreakRow, error]
}

// AnswerResult describes the effect of RecordAnswer.
type AnswerResult struct {
	Count     int
	Duplicate bool
	// Completed is true only for the call that answered the last slot.
	Completed bool
}

// Entry is one leaderboard line.
type Entry struct {
	UserID      int64
	DisplayName string
	Current     int
	Best        int
}

// Engine applies answers and streak updates atomically through the store.
type Engine struct {
	store     Store
	defaultTZ *time.Location
	now       func() time.Time
}

// NewEngine returns an engine over store. defaultTZ is used for users
// without a timezone of their own.
func NewEngine(store Store, defaultTZ *time.Location) *Engine {
	return &Engine{store: store, defaultTZ: defaultTZ, now: time.Now}
}

// RecordAnswer marks slot as answered for (user, day). Re-submitting an
// answered slot changes nothing and reports the existing count.
func (e *Engine) RecordAnswer(ctx context.Context, userID int64, day string, slot int, isCorrect bool) (AnswerResult, error) {
	if slot < 0 || slot >= models.DailyQuestions {
		return AnswerResult{}, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}

	var res AnswerResult
	err := e.store.UpdateDay(ctx, userID, day, func(p *models.DailyProgress, _ *models.Streak) error {
		res = applyAnswer(p, slot, isCorrect, e.now())
		return nil
	})
	if err != nil {
		return AnswerResult{}, err
	}
	return res, nil
}

func applyAnswer(p *models.DailyProgress, slot int, isCorrect bool, now time.Time) AnswerResult {
	if p.Answered(slot) || p.Completed() {
		return AnswerResult{Count: p.Count(), Duplicate: true}
	}

	bit := uint8(1) << uint(slot)
	p.AnsweredMask |= bit
	if isCorrect {
		p.CorrectMask |= bit
	}

	res := AnswerResult{Count: p.Count()}
	if p.Completed() && p.CompletedAt == nil {
		t := now.UTC()
		p.CompletedAt = &t
		res.Completed = true
	}
	return res
}

// OnDayCompleted advances the streak for a completed day. It runs at most once
// per (user, day): applied is false when the day is incomplete or was already
// counted, and the returned streak is then the stored one.
func (e *Engine) OnDayCompleted(ctx context.Context, userID int64, day string) (models.Streak, bool, error) {
	var (
		out     models.Streak
		applied bool
	)
	err := e.store.UpdateDay(ctx, userID, day, func(p *models.DailyProgress, s *models.Streak) error {
		if p.Completed() && !p.StreakApplied {
			advanceStreak(s, day)
			p.StreakApplied = true
			applied = true
		}
		out = *s
		return nil
	})
	if err != nil {
		return models.Streak{}, false, err
	}
	return out, applied, nil
}

// advanceStreak counts day toward the streak. A day at or before LastDay,
// reachable after a move to a western timezone, leaves the streak as is.
func advanceStreak(s *models.Streak, day string) {
	if s.LastDay != "" && day <= s.LastDay {
		return
	}
	if s.LastDay != "" && s.LastDay == Yesterday(day) {
		s.Current++
	} else {
		s.Current = 1
	}
	if s.Current > s.Best {
		s.Best = s.Current
	}
	s.LastDay = day
}

// Streak returns the user's streak as of today: a streak whose last completed
// day is older than yesterday reports a current value of 0.
func (e *Engine) Streak(ctx context.Context, userID int64, today string) (models.Streak, error) {
	s, err := e.store.GetStreak(ctx, userID)
	if err != nil {
		return models.Streak{}, err
	}
	out := *s
	out.Current = effectiveCurrent(out, today)
	return out, nil
}

func effectiveCurrent(s models.Streak, today string) int {
	if s.LastDay == today || s.LastDay == Yesterday(today) {
		return s.Current
	}
	return 0
}

// Progress returns the stored progress for (user, day).
func (e *Engine) Progress(ctx context.Context, userID int64, day string) (*models.DailyProgress, error) {
	return e.store.GetProgress(ctx, userID, day)
}

// Leaderboard streams a chat's streaks, best streak first, then current
// streak, then user ID. Nothing is cached; each call queries the store.
func (e *Engine) Leaderboard(ctx context.Context, chatID int64) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for row, err := range e.store.StreakRows(ctx, chatID) {
			if err != nil {
				yield(Entry{}, err)
				return
			}
			today := e.Today(row.Timezone)
			entry := Entry{
				UserID:      row.Streak.UserID,
				DisplayName: row.DisplayName,
				Current:     effectiveCurrent(row.Streak, today),
				Best:        row.Streak.Best,
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Location resolves tz, falling back to the default zone.
func (e *Engine) Location(tz string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return e.defaultTZ
}

// Today is the current calendar day in tz.
func (e *Engine) Today(tz string) string {
	return DayOf(e.now(), e.Location(tz))
}

// DayOf formats t as a calendar day in loc.
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// Yesterday returns the calendar day before day, or "" if day is malformed.
func Yesterday(day string) string {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DayLayout)
}
