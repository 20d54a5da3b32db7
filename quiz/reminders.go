package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/korjavin/commitquizbot/scheduler"
)

const whenLayout = "2006-01-02 15:04"

// Notify sets or replaces the caller's daily reminder: /notify HH:MM [Area/City].
func (s *Service) Notify(ctx context.Context, c Caller, args []string) Reply {
	if len(args) == 0 {
		return Reply{Text: "Usage: `/notify HH:MM [Area/City]`\nExample: `/notify 07:30 Asia/Kolkata`", Markdown: true}
	}
	tz := s.DefaultTZ
	if len(args) > 1 {
		tz = args[1]
	}

	sched, err := scheduler.ParseSchedule(args[0], tz)
	if errors.Is(err, scheduler.ErrInvalidSchedule) {
		return Reply{Text: "❌ Invalid time or timezone. Example: `/notify 07:30 Asia/Kolkata`", Markdown: true}
	}
	if err != nil {
		return s.failure("parse schedule", c, err)
	}

	next, err := s.Reminders.Schedule(ctx, c.UserID, c.ChatID, sched)
	if err != nil {
		return s.failure("schedule reminder", c, err)
	}
	return Reply{
		Text: fmt.Sprintf("⏰ Daily reminder set for *%02d:%02d* (%s).\nNext run: *%s* %s",
			sched.Hour, sched.Minute, escape(sched.TZ()), next.In(sched.Location).Format(whenLayout), escape(sched.TZ())),
		Markdown: true,
	}
}

// When shows the next reminder time.
func (s *Service) When(_ context.Context, c Caller) Reply {
	next, sched, ok := s.Reminders.Next(c.UserID)
	if !ok {
		return Reply{Text: "No reminder set. Use `/notify HH:MM [Area/City]` first.", Markdown: true}
	}
	return Reply{
		Text:     fmt.Sprintf("🗓️ Next reminder: *%s* (%s)", next.In(sched.Location).Format(whenLayout), escape(sched.TZ())),
		Markdown: true,
	}
}

// Unnotify cancels the caller's reminder.
func (s *Service) Unnotify(ctx context.Context, c Caller) Reply {
	removed, err := s.Reminders.Cancel(ctx, c.UserID)
	if err != nil {
		return s.failure("cancel reminder", c, err)
	}
	if !removed {
		return Reply{Text: "No active daily reminder to cancel."}
	}
	return Reply{Text: "🛑 Daily reminder disabled."}
}
