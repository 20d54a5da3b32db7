package progress

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/korjavin/commitquizbot/database"
	"github.com/korjavin/commitquizbot/models"
)

func newTestEngine(t *testing.T) (*Engine, *database.DB) {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return NewEngine(db, ny), db
}

func completeDay(t *testing.T, e *Engine, userID int64, day string) models.Streak {
	t.Helper()
	ctx := context.Background()
	var last AnswerResult
	for slot := 0; slot < models.DailyQuestions; slot++ {
		res, err := e.RecordAnswer(ctx, userID, day, slot, true)
		if err != nil {
			t.Fatalf("RecordAnswer(%s, %d): %v", day, slot, err)
		}
		last = res
	}
	if !last.Completed {
		t.Fatalf("expected day %s to complete on the fifth answer", day)
	}
	s, applied, err := e.OnDayCompleted(ctx, userID, day)
	if err != nil {
		t.Fatalf("OnDayCompleted: %v", err)
	}
	if !applied {
		t.Fatalf("expected streak update for %s", day)
	}
	return s
}

func TestFiveDistinctSlotsCompleteTheDay(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	for slot := 0; slot < models.DailyQuestions; slot++ {
		res, err := e.RecordAnswer(ctx, 1, "2024-01-01", slot, slot%2 == 0)
		if err != nil {
			t.Fatalf("RecordAnswer: %v", err)
		}
		if res.Count != slot+1 {
			t.Fatalf("Count=%d, want %d", res.Count, slot+1)
		}
		if res.Completed != (slot == models.DailyQuestions-1) {
			t.Fatalf("Completed=%v at slot %d", res.Completed, slot)
		}
	}

	for slot := 0; slot < models.DailyQuestions; slot++ {
		res, err := e.RecordAnswer(ctx, 1, "2024-01-01", slot, true)
		if err != nil {
			t.Fatalf("RecordAnswer: %v", err)
		}
		if !res.Duplicate || res.Completed || res.Count != models.DailyQuestions {
			t.Fatalf("sixth answer should be a no-op, got %+v", res)
		}
	}

	p, err := db.GetProgress(ctx, 1, "2024-01-01")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if !p.Completed() || p.CompletedAt == nil {
		t.Fatalf("expected completed progress, got %+v", p)
	}
	if p.Correct() != 3 {
		t.Fatalf("Correct=%d, want 3", p.Correct())
	}
}

func TestDuplicateSlotIsIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.RecordAnswer(ctx, 1, "2024-01-01", 2, true); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	res, err := e.RecordAnswer(ctx, 1, "2024-01-01", 2, false)
	if err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if !res.Duplicate || res.Count != 1 {
		t.Fatalf("expected duplicate with count 1, got %+v", res)
	}
}

func TestInvalidSlot(t *testing.T) {
	e, _ := newTestEngine(t)
	for _, slot := range []int{-1, models.DailyQuestions} {
		if _, err := e.RecordAnswer(context.Background(), 1, "2024-01-01", slot, true); !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("slot %d: expected ErrInvalidSlot, got %v", slot, err)
		}
	}
}

func TestOnDayCompletedRunsOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, applied, err := e.OnDayCompleted(ctx, 1, "2024-01-01"); err != nil || applied {
		t.Fatalf("incomplete day must not count: applied=%v err=%v", applied, err)
	}

	s := completeDay(t, e, 1, "2024-01-01")
	if s.Current != 1 || s.Best != 1 {
		t.Fatalf("unexpected streak %+v", s)
	}

	again, applied, err := e.OnDayCompleted(ctx, 1, "2024-01-01")
	if err != nil {
		t.Fatalf("OnDayCompleted: %v", err)
	}
	if applied || again.Current != 1 {
		t.Fatalf("replay must not advance the streak: applied=%v streak=%+v", applied, again)
	}
}

func TestStreakScenario(t *testing.T) {
	e, _ := newTestEngine(t)

	steps := []struct {
		day           string
		current, best int
	}{
		{"2024-01-01", 1, 1},
		{"2024-01-02", 2, 2},
		// 2024-01-03 skipped
		{"2024-01-04", 1, 2},
		{"2024-01-05", 2, 2},
		{"2024-01-06", 3, 3},
	}
	for _, step := range steps {
		s := completeDay(t, e, 42, step.day)
		if s.Current != step.current || s.Best != step.best {
			t.Fatalf("%s: got (current=%d, best=%d), want (%d, %d)", step.day, s.Current, s.Best, step.current, step.best)
		}
		if s.Best < s.Current {
			t.Fatalf("%s: best %d < current %d", step.day, s.Best, s.Current)
		}
	}
}

func TestEarlierDayDoesNotRewindStreak(t *testing.T) {
	e, _ := newTestEngine(t)

	completeDay(t, e, 7, "2024-01-02")
	// Moving west can make "today" the calendar day before the last completion.
	s := completeDay(t, e, 7, "2024-01-01")
	if s.Current != 1 || s.Best != 1 || s.LastDay != "2024-01-02" {
		t.Fatalf("earlier day changed the streak: %+v", s)
	}

	s = completeDay(t, e, 7, "2024-01-03")
	if s.Current != 2 || s.Best != 2 || s.LastDay != "2024-01-03" {
		t.Fatalf("after 2024-01-03: %+v, want current=2 best=2", s)
	}
}

func TestStreakReportsBrokenStreakAsZero(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	completeDay(t, e, 1, "2024-01-01")

	s, err := e.Streak(ctx, 1, "2024-01-02")
	if err != nil || s.Current != 1 {
		t.Fatalf("yesterday's completion keeps the streak: %+v err=%v", s, err)
	}
	s, err = e.Streak(ctx, 1, "2024-01-03")
	if err != nil || s.Current != 0 || s.Best != 1 {
		t.Fatalf("skipped day breaks the streak: %+v err=%v", s, err)
	}
}

func TestLeaderboard(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	e.now = func() time.Time { return time.Date(2024, 1, 3, 17, 0, 0, 0, time.UTC) }

	for _, u := range []int64{1, 2} {
		if err := db.TouchUser(ctx, u, 10, ""); err != nil {
			t.Fatalf("TouchUser: %v", err)
		}
	}
	completeDay(t, e, 1, "2024-01-01")
	completeDay(t, e, 2, "2024-01-01")
	completeDay(t, e, 2, "2024-01-02")

	var got []Entry
	for entry, err := range e.Leaderboard(ctx, 10) {
		if err != nil {
			t.Fatalf("Leaderboard: %v", err)
		}
		got = append(got, entry)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	if got[0].UserID != 2 || got[0].Best != 2 || got[0].Current != 2 {
		t.Fatalf("unexpected leader %+v", got[0])
	}
	// User 1 last completed 2024-01-01, two days before "today" in New York.
	if got[1].UserID != 1 || got[1].Current != 0 || got[1].Best != 1 {
		t.Fatalf("unexpected runner-up %+v", got[1])
	}
}

func TestDayHelpers(t *testing.T) {
	if got := Yesterday("2024-03-01"); got != "2024-02-29" {
		t.Fatalf("Yesterday=%q", got)
	}
	if got := Yesterday("bogus"); got != "" {
		t.Fatalf("Yesterday(bogus)=%q", got)
	}
	ny, _ := time.LoadLocation("America/New_York")
	// 03:00 UTC on Jan 2 is still Jan 1 in New York.
	if got := DayOf(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), ny); got != "2024-01-01" {
		t.Fatalf("DayOf=%q", got)
	}
}
