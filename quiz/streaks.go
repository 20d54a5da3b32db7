package quiz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/korjavin/commitquizbot/commits"
)

const boardSize = 10

// Streak shows the caller's current and best streak.
func (s *Service) Streak(ctx context.Context, c Caller) Reply {
	tz, err := s.timezone(ctx, c.UserID)
	if err != nil {
		return s.failure("get timezone", c, err)
	}
	st, err := s.Progress.Streak(ctx, c.UserID, s.Progress.Today(tz))
	if err != nil {
		return s.failure("get streak", c, err)
	}
	switch {
	case st.Best == 0:
		return Reply{Text: "No streak yet. Answer all 5 /daily questions today to start one! 🔥"}
	case st.Current == 0:
		return Reply{
			Text:     fmt.Sprintf("Your streak ended (last completed: %s). *Best*: %d. Finish /daily today to start again!", st.LastDay, st.Best),
			Markdown: true,
		}
	default:
		return Reply{
			Text:     fmt.Sprintf("🔥 *Streak*: %d day(s), *Best*: %d (last completed: %s)", st.Current, st.Best, st.LastDay),
			Markdown: true,
		}
	}
}

// Streakboard lists the top streaks of the chat.
func (s *Service) Streakboard(ctx context.Context, c Caller) Reply {
	lines := []string{"🏆 *Top Streaks*"}
	rank := 0
	for e, err := range s.Progress.Leaderboard(ctx, c.ChatID) {
		if err != nil {
			return s.failure("leaderboard", c, err)
		}
		rank++
		name := e.DisplayName
		if name == "" {
			name = "User " + strconv.FormatInt(e.UserID, 10)
		}
		lines = append(lines, fmt.Sprintf("%d. %s: *%d* (best %d)", rank, escape(name), e.Current, e.Best))
		if rank == boardSize {
			break
		}
	}
	if rank == 0 {
		return Reply{Text: "No streaks yet in this chat. Be the first: complete /daily today!"}
	}
	return Reply{Text: strings.Join(lines, "\n"), Markdown: true}
}

// ForceCommit writes debug commits: /forcecommit [n] [tag].
func (s *Service) ForceCommit(ctx context.Context, c Caller, args []string) Reply {
	n := 1
	tag := strconv.FormatInt(c.UserID, 10)
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return Reply{Text: "Usage: `/forcecommit [n] [tag]` (n must be an integer)", Markdown: true}
		}
		n = max(1, v)
	}
	if len(args) >= 2 {
		tag = args[1]
	}
	capped := n > commits.MaxForce

	written, err := s.Commits.Force(ctx, n, tag)
	var partial *commits.PartialCommitError
	switch {
	case errors.Is(err, commits.ErrNotConfigured):
		return Reply{Text: "GitHub commits are not configured.\n" + s.Commits.Diagnose()}
	case errors.As(err, &partial):
		s.Log.Warn("forcecommit partial", zap.Int64("user_id", c.UserID), zap.Error(err))
		return Reply{Text: fmt.Sprintf("⚠️ Only %d/%d commits landed: %v\n%s", partial.Succeeded, partial.Required, partial.Err, s.Commits.Diagnose())}
	case err != nil:
		return s.failure("forcecommit", c, err)
	}

	text := fmt.Sprintf("✅ Created %d commit(s) tagged %s.", written, tag)
	if capped {
		text += fmt.Sprintf(" (capped at %d)", commits.MaxForce)
	}
	return Reply{Text: text}
}
