// Package quiz implements the chat commands and callbacks of the bot
// independently of the chat transport.
package quiz

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/korjavin/commitquizbot/commits"
	"github.com/korjavin/commitquizbot/database"
	"github.com/korjavin/commitquizbot/models"
	"github.com/korjavin/commitquizbot/progress"
	"github.com/korjavin/commitquizbot/questions"
	"github.com/korjavin/commitquizbot/scheduler"
	"github.com/korjavin/commitquizbot/session"
)

// Caller identifies who sent an update and where to answer.
type Caller struct {
	UserID      int64
	ChatID      int64
	DisplayName string
}

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Reply is what the transport should send back.
type Reply struct {
	Text string
	// Markdown marks Text as legacy Telegram Markdown.
	Markdown bool
	Keyboard [][]Button
	// Edit asks the transport to replace the message a callback came from.
	Edit bool
}

// Store is the user-level data the service reads and writes directly.
type Store interface {
	TouchUser(ctx context.Context, userID, chatID int64, displayName string) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	SetGitHubUsername(ctx context.Context, userID int64, username string) error
	UserTimezone(ctx context.Context, userID int64) (string, error)
	AddScore(ctx context.Context, userID int64, correct bool) error
	GetScore(ctx context.Context, userID int64) (*models.Score, error)
}

// Progress is the daily quiz and streak state machine.
type Progress interface {
	RecordAnswer(ctx context.Context, userID int64, day string, slot int, isCorrect bool) (progress.AnswerResult, error)
	OnDayCompleted(ctx context.Context, userID int64, day string) (models.Streak, bool, error)
	Streak(ctx context.Context, userID int64, today string) (models.Streak, error)
	Progress(ctx context.Context, userID int64, day string) (*models.DailyProgress, error)
	Leaderboard(ctx context.Context, chatID int64) iter.Seq2[progress.Entry, error]
	Today(tz string) string
}

// Reminders is the per-user reminder scheduler.
type Reminders interface {
	Schedule(ctx context.Context, userID, chatID int64, sched scheduler.Schedule) (time.Time, error)
	Cancel(ctx context.Context, userID int64) (bool, error)
	Next(userID int64) (time.Time, scheduler.Schedule, bool)
	Live(ev scheduler.Event) bool
}

// Commits creates the daily commit batch and debug commits.
type Commits interface {
	TriggerIfOwed(ctx context.Context, userID int64, day string) (commits.Outcome, error)
	Force(ctx context.Context, n int, tag string) (int, error)
	Diagnose() string
}

// Graph builds contribution-graph questions.
type Graph interface {
	MakeQuestion(ctx context.Context, username string, now time.Time) (models.ContributionQuestion, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store     Store
	Progress  Progress
	Reminders Reminders
	Commits   Commits
	Bank      *questions.Bank
	Graph     Graph
	Sessions  session.Store
	DefaultTZ string
	Log       *zap.Logger
}

// Service handles commands and callbacks for every user. Calls for one user
// must be serialized by the caller.
type Service struct {
	Deps
	now func() time.Time
}

// New creates a quiz service. An empty DefaultTZ means Asia/Kolkata.
func New(d Deps) *Service {
	if d.DefaultTZ == "" {
		d.DefaultTZ = "Asia/Kolkata"
	}
	d.Log = d.Log.Named("quiz")
	return &Service{Deps: d, now: time.Now}
}

// Command runs a slash command. cmd has no leading slash.
func (s *Service) Command(ctx context.Context, c Caller, cmd string, args []string) Reply {
	if err := s.Store.TouchUser(ctx, c.UserID, c.ChatID, c.DisplayName); err != nil {
		return s.failure("touch user", c, err)
	}

	switch strings.ToLower(cmd) {
	case "start":
		return Reply{Text: welcomeText, Markdown: true}
	case "help":
		return Reply{Text: helpText, Markdown: true}
	case "daily":
		return s.Daily(ctx, c)
	case "notify":
		return s.Notify(ctx, c, args)
	case "when":
		return s.When(ctx, c)
	case "unnotify":
		return s.Unnotify(ctx, c)
	case "streak":
		return s.Streak(ctx, c)
	case "streakboard":
		return s.Streakboard(ctx, c)
	case "forcecommit":
		return s.ForceCommit(ctx, c, args)
	case "setuser":
		return s.SetUser(ctx, c, args)
	case "quiz":
		return s.Quiz(ctx, c)
	case "score":
		return s.Score(ctx, c)
	default:
		return Reply{Text: "Unknown command. Use /help to see what I can do."}
	}
}

// Callback handles inline keyboard presses.
func (s *Service) Callback(ctx context.Context, c Caller, data string) Reply {
	if err := s.Store.TouchUser(ctx, c.UserID, c.ChatID, c.DisplayName); err != nil {
		return s.failure("touch user", c, err)
	}

	switch {
	case data == nextDailyData:
		return s.Next(ctx, c)
	case strings.HasPrefix(data, dailyPrefix):
		return s.Answer(ctx, c, data)
	case data == nextGraphData, strings.HasPrefix(data, graphPrefix):
		return s.GraphAnswer(ctx, c, data)
	default:
		s.Log.Warn("unknown callback", zap.Int64("user_id", c.UserID), zap.String("data", data))
		return Reply{Text: "Invalid action. Use /help to start again.", Edit: true}
	}
}

func (s *Service) timezone(ctx context.Context, userID int64) (string, error) {
	tz, err := s.Store.UserTimezone(ctx, userID)
	if err != nil {
		return "", err
	}
	if tz == "" {
		tz = s.DefaultTZ
	}
	return tz, nil
}

func (s *Service) failure(op string, c Caller, err error) Reply {
	s.Log.Error(op, zap.Int64("user_id", c.UserID), zap.Int64("chat_id", c.ChatID), zap.Error(err))
	if errors.Is(err, database.ErrStoreUnavailable) {
		return Reply{Text: "⚠️ Storage is unavailable right now. Please try again later."}
	}
	return Reply{Text: "⚠️ Something went wrong. Please try again later."}
}
