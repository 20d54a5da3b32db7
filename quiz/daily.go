package quiz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/korjavin/commitquizbot/commits"
	"github.com/korjavin/commitquizbot/models"
	"github.com/korjavin/commitquizbot/scheduler"
)

const (
	dailyPrefix   = "cs:"
	nextDailyData = "cs:next"
	compactDay    = "20060102"
)

var optionLabels = []string{"A", "B", "C", "D", "E", "F"}

// ErrBadCallback is returned by ParseAnswer for malformed callback data.
var ErrBadCallback = errors.New("malformed callback data")

// AnswerData encodes an answer button for (day, slot, option). Day is YYYY-MM-DD.
func AnswerData(day string, slot, option int) string {
	return fmt.Sprintf("%s%s:%d:%d", dailyPrefix, strings.ReplaceAll(day, "-", ""), slot, option)
}

// ParseAnswer decodes AnswerData.
func ParseAnswer(data string) (day string, slot, option int, err error) {
	parts := strings.Split(strings.TrimPrefix(data, dailyPrefix), ":")
	if !strings.HasPrefix(data, dailyPrefix) || len(parts) != 3 || len(parts[0]) != len(compactDay) {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrBadCallback, data)
	}
	raw := parts[0]
	day = raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8]
	if slot, err = strconv.Atoi(parts[1]); err != nil || slot < 0 || slot >= models.DailyQuestions {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrBadCallback, data)
	}
	if option, err = strconv.Atoi(parts[2]); err != nil || option < 0 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrBadCallback, data)
	}
	return day, slot, option, nil
}

// Daily serves the next unanswered question of today, or the day's summary
// once all of them are answered.
func (s *Service) Daily(ctx context.Context, c Caller) Reply {
	return s.nextPrompt(ctx, c, "", false)
}

// Next is the "next question" button of the daily quiz.
func (s *Service) Next(ctx context.Context, c Caller) Reply {
	return s.nextPrompt(ctx, c, "", false)
}

// Fire handles a reminder event. It returns false when the event is stale or
// the user has already finished today's quiz.
func (s *Service) Fire(ctx context.Context, ev scheduler.Event) (Reply, bool) {
	if !s.Reminders.Live(ev) {
		s.Log.Debug("dropping stale reminder", zap.Int64("user_id", ev.UserID), zap.Uint64("generation", ev.Generation))
		return Reply{}, false
	}
	c := Caller{UserID: ev.UserID, ChatID: ev.ChatID}
	tz, err := s.timezone(ctx, c.UserID)
	if err != nil {
		s.Log.Error("reminder timezone", zap.Int64("user_id", c.UserID), zap.Error(err))
		return Reply{}, false
	}
	p, err := s.Progress.Progress(ctx, c.UserID, s.Progress.Today(tz))
	if err != nil {
		s.Log.Error("reminder progress", zap.Int64("user_id", c.UserID), zap.Error(err))
		return Reply{}, false
	}
	if p.Completed() {
		return Reply{}, false
	}
	header := "⏰ Time for your daily quiz!\n\n"
	if ev.CatchUp {
		header = "⏰ I missed your reminder while offline. Here's your daily quiz!\n\n"
	}
	return s.nextPrompt(ctx, c, header, true), true
}

func (s *Service) nextPrompt(ctx context.Context, c Caller, header string, fromReminder bool) Reply {
	tz, err := s.timezone(ctx, c.UserID)
	if err != nil {
		return s.failure("get timezone", c, err)
	}
	today := s.Progress.Today(tz)
	p, err := s.Progress.Progress(ctx, c.UserID, today)
	if err != nil {
		return s.failure("get progress", c, err)
	}
	if p.Completed() {
		if fromReminder {
			return Reply{}
		}
		st, note := s.settleDay(ctx, c, today)
		return Reply{
			Text: fmt.Sprintf("🎉 You've completed today's %d. Streak: *%d* (best *%d*). See you tomorrow!%s",
				models.DailyQuestions, st.Current, st.Best, note),
			Markdown: true,
		}
	}

	slot := 0
	for p.Answered(slot) {
		slot++
	}
	q := s.Bank.Pick(c.UserID, today, slot)

	rows := make([][]Button, 0, 3)
	var row []Button
	for i, opt := range q.Options {
		row = append(row, Button{
			Label: fmt.Sprintf("%s: %s", label(i), opt),
			Data:  AnswerData(today, slot, i),
		})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return Reply{
		Text: fmt.Sprintf("%s🧠 *%s*: %s\n\n_Question %d of %d_",
			header, escape(q.Category), escape(q.Question), p.Count()+1, models.DailyQuestions),
		Markdown: true,
		Keyboard: rows,
	}
}

// Answer records a daily quiz answer. Completing the fifth slot advances the
// streak and triggers the day's commit batch.
func (s *Service) Answer(ctx context.Context, c Caller, data string) Reply {
	day, slot, option, err := ParseAnswer(data)
	if err != nil {
		return Reply{Text: "Invalid option. Use /daily to start again.", Edit: true}
	}

	tz, err := s.timezone(ctx, c.UserID)
	if err != nil {
		return s.failure("get timezone", c, err)
	}
	today := s.Progress.Today(tz)
	if day != today {
		return Reply{
			Text:     fmt.Sprintf("⌛ That question was from %s. Use /daily for today's questions.", day),
			Edit:     true,
			Keyboard: nextKeyboard(),
		}
	}

	q := s.Bank.Pick(c.UserID, day, slot)
	if option >= len(q.Options) {
		return Reply{Text: "Invalid option. Use /daily to start again.", Edit: true}
	}
	correct := option == q.CorrectIndex

	res, err := s.Progress.RecordAnswer(ctx, c.UserID, day, slot, correct)
	if err != nil {
		return s.failure("record answer", c, err)
	}
	if res.Duplicate {
		return Reply{
			Text:     fmt.Sprintf("You already answered that one. Progress today: %d / %d", res.Count, models.DailyQuestions),
			Edit:     true,
			Keyboard: nextKeyboard(),
		}
	}

	var b strings.Builder
	if correct {
		b.WriteString("✅ Correct!")
	} else {
		fmt.Fprintf(&b, "❌ Incorrect. The right answer was *%s*.", escape(q.Options[q.CorrectIndex]))
	}
	fmt.Fprintf(&b, "\n\n_%s_\n\nProgress today: %d / %d", escape(q.Category), res.Count, models.DailyQuestions)

	if res.Completed {
		st, note := s.settleDay(ctx, c, day)
		fmt.Fprintf(&b, "\n\n🔥 *Streak*: %d day(s) (best %d)%s", st.Current, st.Best, note)
		return Reply{Text: b.String(), Markdown: true, Edit: true}
	}
	return Reply{Text: b.String(), Markdown: true, Edit: true, Keyboard: nextKeyboard()}
}

// settleDay applies the streak for a completed day and makes sure its commit
// batch is requested. Both steps are idempotent, so replays only report.
func (s *Service) settleDay(ctx context.Context, c Caller, day string) (models.Streak, string) {
	st, applied, err := s.Progress.OnDayCompleted(ctx, c.UserID, day)
	if err != nil {
		s.Log.Error("streak update failed", zap.Int64("user_id", c.UserID), zap.String("day", day), zap.Error(err))
		return st, "\n\n⚠️ Your answers are saved, but I couldn't update your streak. Please try /daily again later."
	}
	if applied {
		s.Log.Info("day completed",
			zap.Int64("user_id", c.UserID),
			zap.String("day", day),
			zap.Int("current", st.Current),
			zap.Int("best", st.Best))
	}

	outcome, err := s.Commits.TriggerIfOwed(ctx, c.UserID, day)
	var partial *commits.PartialCommitError
	switch {
	case errors.Is(err, commits.ErrNotConfigured):
		return st, ""
	case errors.As(err, &partial):
		return st, fmt.Sprintf("\n\n⚠️ Completion recorded, but only %d/%d commits landed. I'll retry the rest automatically.",
			partial.Succeeded, partial.Required)
	case err != nil:
		s.Log.Error("commit trigger failed", zap.Int64("user_id", c.UserID), zap.String("day", day), zap.Error(err))
		return st, "\n\n⚠️ Completion recorded. Commits will be retried later."
	case outcome == commits.Committed:
		return st, fmt.Sprintf("\n\n📦 %d commits pushed to your graph.", commits.BatchSize)
	default:
		return st, ""
	}
}

func nextKeyboard() [][]Button {
	return [][]Button{{{Label: "⏭ Next question", Data: nextDailyData}}}
}

func label(i int) string {
	if i < len(optionLabels) {
		return optionLabels[i]
	}
	return strconv.Itoa(i + 1)
}
