package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/korjavin/commitquizbot/models"
)

// ReminderStore persists reminder configuration.
type ReminderStore interface {
	SaveReminder(ctx context.Context, r models.Reminder) error
	DeleteReminder(ctx context.Context, userID int64) (bool, error)
	ListReminders(ctx context.Context) ([]models.Reminder, error)
	SetNextFire(ctx context.Context, r models.Reminder) error
}

// Clock abstracts wall time and timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Event signals that a user's reminder is due. Consumers must check Live
// before acting on it.
type Event struct {
	UserID     int64
	ChatID     int64
	Due        time.Time
	Generation uint64
	CatchUp    bool
}

type entry struct {
	chatID int64
	sched  Schedule
	next   time.Time
	gen    uint64
	timer  Timer
}

// Scheduler keeps at most one live daily trigger per user.
type Scheduler struct {
	store  ReminderStore
	clock  Clock
	log    *zap.Logger
	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	entries  map[int64]*entry
	gen      uint64
	stopped  bool
	stopOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New returns a scheduler with no triggers. Call Restore to load persisted
// reminders.
func New(store ReminderStore, log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		clock:   realClock{},
		log:     log.Named("scheduler"),
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
		entries: make(map[int64]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events delivers due reminders.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Schedule persists the reminder and replaces any existing trigger for the user.
func (s *Scheduler) Schedule(ctx context.Context, userID, chatID int64, sched Schedule) (time.Time, error) {
	next := NextFire(sched, s.clock.Now())
	err := s.store.SaveReminder(ctx, reminder(userID, chatID, sched, next))
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	s.installLocked(userID, chatID, sched, next)
	s.mu.Unlock()

	s.log.Info("reminder scheduled",
		zap.Int64("user_id", userID),
		zap.String("schedule", sched.String()),
		zap.Time("next_fire", next))
	return next, nil
}

// Cancel stops the user's trigger and removes the persisted reminder. Events
// already queued for the old trigger stop being Live before this returns.
func (s *Scheduler) Cancel(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	e, had := s.entries[userID]
	if had {
		e.timer.Stop()
		delete(s.entries, userID)
	}
	s.mu.Unlock()

	existed, err := s.store.DeleteReminder(ctx, userID)
	if err != nil {
		return had, err
	}
	if had || existed {
		s.log.Info("reminder cancelled", zap.Int64("user_id", userID))
	}
	return had || existed, nil
}

// Next reports the user's next fire time and schedule.
func (s *Scheduler) Next(userID int64) (time.Time, Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return time.Time{}, Schedule{}, false
	}
	return e.next, e.sched, true
}

// Live reports whether ev still belongs to the user's current trigger.
func (s *Scheduler) Live(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ev.UserID]
	return ok && !s.stopped && e.gen == ev.Generation
}

// Restore rebuilds triggers from the store. A reminder whose next fire time
// has already passed fires once right away and then resumes at the configured
// time. A broken row is logged and skipped.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	reminders, err := s.store.ListReminders(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()

	restored := 0
	for _, r := range reminders {
		sched, err := NewSchedule(r.Hour, r.Minute, r.Timezone)
		if err != nil {
			s.log.Error("skip reminder", zap.Int64("user_id", r.UserID), zap.Error(err))
			continue
		}

		now := s.clock.Now()
		next := r.NextFire
		catchUp := !next.After(now)
		if catchUp {
			for !next.After(now) {
				next = following(sched, next)
			}
		}

		s.mu.Lock()
		gen := s.installLocked(r.UserID, r.ChatID, sched, next)
		s.mu.Unlock()

		if catchUp {
			s.log.Info("reminder missed while offline, firing now",
				zap.Int64("user_id", r.UserID),
				zap.Time("missed", r.NextFire),
				zap.Time("next_fire", next))
			if err := s.store.SetNextFire(ctx, reminder(r.UserID, r.ChatID, sched, next)); err != nil {
				s.log.Error("persist next fire", zap.Int64("user_id", r.UserID), zap.Error(err))
			}
			go s.emit(Event{UserID: r.UserID, ChatID: r.ChatID, Due: r.NextFire, Generation: gen, CatchUp: true})
		}
		restored++
	}
	s.log.Info("reminders restored", zap.Int("count", restored))
	return restored, nil
}

// Run blocks until ctx is done, then stops every trigger.
func (s *Scheduler) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels all timers. Pending events are no longer Live.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		for _, e := range s.entries {
			e.timer.Stop()
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Scheduler) installLocked(userID, chatID int64, sched Schedule, next time.Time) uint64 {
	if old, ok := s.entries[userID]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	e := &entry{chatID: chatID, sched: sched, next: next, gen: gen}
	e.timer = s.clock.AfterFunc(next.Sub(s.clock.Now()), func() { s.fire(userID, gen) })
	s.entries[userID] = e
	return gen
}

func (s *Scheduler) fire(userID int64, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	due := e.next
	now := s.clock.Now()
	next := following(e.sched, due)
	for !next.After(now) {
		next = following(e.sched, next)
	}
	e.next = next
	e.timer = s.clock.AfterFunc(next.Sub(now), func() { s.fire(userID, gen) })
	chatID := e.chatID
	sched := e.sched
	s.mu.Unlock()

	// Skipped by the store if Schedule replaced the row meanwhile.
	if err := s.store.SetNextFire(context.Background(), reminder(userID, chatID, sched, next)); err != nil {
		s.log.Error("persist next fire", zap.Int64("user_id", userID), zap.Error(err))
	}
	s.log.Debug("reminder fired", zap.Int64("user_id", userID), zap.Time("due", due), zap.Time("next_fire", next))
	s.emit(Event{UserID: userID, ChatID: chatID, Due: due, Generation: gen})
}

func reminder(userID, chatID int64, sched Schedule, next time.Time) models.Reminder {
	return models.Reminder{
		UserID:   userID,
		ChatID:   chatID,
		Hour:     sched.Hour,
		Minute:   sched.Minute,
		Timezone: sched.TZ(),
		NextFire: next,
	}
}

func (s *Scheduler) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
