package models

import (
	"math/bits"
	"time"
)

// DailyQuestions is the number of question slots in one day's quiz.
const DailyQuestions = 5

// User is created on first interaction and never deleted.
type User struct {
	UserID         int64
	GitHubUsername string
	Timezone       string
	CreatedAt      time.Time
}

// DailyProgress tracks one user's quiz for one calendar day in their timezone.
// Day is formatted as YYYY-MM-DD.
type DailyProgress struct {
	UserID          int64
	Day             string
	AnsweredMask    uint8
	CorrectMask     uint8
	CompletedAt     *time.Time
	StreakApplied   bool
	CommitTriggered bool
}

// Count is the number of answered slots.
func (p DailyProgress) Count() int {
	return bits.OnesCount8(p.AnsweredMask)
}

// Correct is the number of slots answered correctly.
func (p DailyProgress) Correct() int {
	return bits.OnesCount8(p.CorrectMask)
}

// Completed reports whether all slots are answered.
func (p DailyProgress) Completed() bool {
	return p.Count() >= DailyQuestions
}

// Answered reports whether the slot already has an answer.
func (p DailyProgress) Answered(slot int) bool {
	return p.AnsweredMask&(1<<uint(slot)) != 0
}

// Streak holds consecutive completed days for a user.
type Streak struct {
	UserID  int64
	Current int
	Best    int
	LastDay string
}

// Reminder is the persisted daily reminder configuration.
type Reminder struct {
	UserID   int64
	ChatID   int64
	Hour     int
	Minute   int
	Timezone string
	NextFire time.Time
}

// Score is the cumulative tally of the contribution-graph quiz.
type Score struct {
	UserID  int64
	Correct int
	Total   int
}

// OwedCommit is a completed day whose commit batch has not landed yet.
type OwedCommit struct {
	UserID int64
	Day    string
}
