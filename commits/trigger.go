package commits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/korjavin/commitquizbot/github"
	"github.com/korjavin/commitquizbot/models"
)

const (
	// BatchSize is the number of commits owed for one completed day.
	BatchSize = 5
	// MaxForce caps a single /forcecommit request.
	MaxForce = 20

	defaultTimeout = 30 * time.Second
	retryLookback  = 3
)

var (
	// ErrPartialCommit is matched by every *PartialCommitError.
	ErrPartialCommit = errors.New("partial commit")
	// ErrNotConfigured means no GitHub repository is configured.
	ErrNotConfigured = errors.New("github commits not configured")
)

// PartialCommitError reports a batch where fewer than Required writes landed.
type PartialCommitError struct {
	Succeeded int
	Required  int
	Err       error
}

func (e *PartialCommitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partial commit: %d of %d writes succeeded: %v", e.Succeeded, e.Required, e.Err)
	}
	return fmt.Sprintf("partial commit: %d of %d writes succeeded", e.Succeeded, e.Required)
}

func (e *PartialCommitError) Is(target error) bool { return target == ErrPartialCommit }

func (e *PartialCommitError) Unwrap() error { return e.Err }

// Committer creates commits on the remote.
type Committer interface {
	CreateCommits(ctx context.Context, req github.CommitRequest) []github.Result
}

// Store is the commit state the trigger reads and flips.
type Store interface {
	GetProgress(ctx context.Context, userID int64, day string) (*models.DailyProgress, error)
	MarkCommitTriggered(ctx context.Context, userID int64, day string) (bool, error)
	ListOwedCommits(ctx context.Context, sinceDay string) ([]models.OwedCommit, error)
}

// Outcome describes what TriggerIfOwed did when it returned no error.
type Outcome int

const (
	// NotComplete means the day has not been completed yet.
	NotComplete Outcome = iota
	// AlreadyTriggered means the day's batch landed earlier.
	AlreadyTriggered
	// Committed means this call landed the batch and set the flag.
	Committed
)

func (o Outcome) String() string {
	switch o {
	case NotComplete:
		return "not_complete"
	case AlreadyTriggered:
		return "already_triggered"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Trigger turns a completed day into exactly one batch of commits.
type Trigger struct {
	store     Store
	committer Committer
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time
	sf        singleflight.Group
}

// NewTrigger builds a trigger. A nil committer makes every call return
// ErrNotConfigured.
func NewTrigger(store Store, committer Committer, timeout time.Duration, log *zap.Logger) *Trigger {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Trigger{
		store:     store,
		committer: committer,
		timeout:   timeout,
		log:       log.Named("commits"),
		now:       time.Now,
	}
}

// Configured reports whether a committer is present.
func (t *Trigger) Configured() bool {
	return t.committer != nil
}

// TriggerIfOwed creates the day's batch if the day is complete and the batch
// has not landed. The flag is set only when every write succeeded, so a
// failed or timed-out batch can be retried; the remote skips files that
// already exist. Concurrent calls for the same (user, day) share one attempt.
func (t *Trigger) TriggerIfOwed(ctx context.Context, userID int64, day string) (Outcome, error) {
	if t.committer == nil {
		return NotComplete, ErrNotConfigured
	}
	key := strconv.FormatInt(userID, 10) + ":" + day
	v, err, _ := t.sf.Do(key, func() (any, error) {
		return t.trigger(context.WithoutCancel(ctx), userID, day)
	})
	return v.(Outcome), err
}

func (t *Trigger) trigger(ctx context.Context, userID int64, day string) (Outcome, error) {
	p, err := t.store.GetProgress(ctx, userID, day)
	if err != nil {
		return NotComplete, err
	}
	if !p.Completed() {
		return NotComplete, nil
	}
	if p.CommitTriggered {
		return AlreadyTriggered, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	results := t.committer.CreateCommits(ctx, github.CommitRequest{
		Day:   day,
		Count: BatchSize,
		Tag:   strconv.FormatInt(userID, 10),
	})

	if err := checkBatch(results, BatchSize); err != nil {
		t.log.Warn("commit batch incomplete",
			zap.Int64("user_id", userID),
			zap.String("day", day),
			zap.Error(err))
		return NotComplete, err
	}

	marked, err := t.store.MarkCommitTriggered(ctx, userID, day)
	if err != nil {
		return NotComplete, err
	}
	if !marked {
		return AlreadyTriggered, nil
	}
	t.log.Info("commit batch landed", zap.Int64("user_id", userID), zap.String("day", day))
	return Committed, nil
}

// RetryOwed re-issues batches for recently completed days whose flag is still
// unset. It returns how many batches landed.
func (t *Trigger) RetryOwed(ctx context.Context) (int, error) {
	if t.committer == nil {
		return 0, nil
	}
	since := t.now().UTC().AddDate(0, 0, -retryLookback).Format("2006-01-02")
	owed, err := t.store.ListOwedCommits(ctx, since)
	if err != nil {
		return 0, err
	}

	landed := 0
	var errs []error
	for _, o := range owed {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		outcome, err := t.TriggerIfOwed(ctx, o.UserID, o.Day)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d day %s: %w", o.UserID, o.Day, err))
			continue
		}
		if outcome == Committed {
			landed++
		}
	}
	if len(owed) > 0 {
		t.log.Info("owed commits retried", zap.Int("owed", len(owed)), zap.Int("landed", landed))
	}
	return landed, errors.Join(errs...)
}

// Force writes n unique commits tagged tag for today, without any guard.
func (t *Trigger) Force(ctx context.Context, n int, tag string) (int, error) {
	if t.committer == nil {
		return 0, ErrNotConfigured
	}
	n = min(max(n, 1), MaxForce)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	results := t.committer.CreateCommits(ctx, github.CommitRequest{
		Day:    t.now().UTC().Format("2006-01-02"),
		Count:  n,
		Tag:    tag,
		Unique: true,
	})
	if err := checkBatch(results, n); err != nil {
		var pe *PartialCommitError
		errors.As(err, &pe)
		return pe.Succeeded, err
	}
	t.log.Info("forced commits", zap.Int("count", n), zap.String("tag", tag))
	return n, nil
}

// Diagnose describes the committer configuration when it can.
func (t *Trigger) Diagnose() string {
	if d, ok := t.committer.(interface{ Diagnose() string }); ok {
		return d.Diagnose()
	}
	return ""
}

func checkBatch(results []github.Result, required int) error {
	ok := 0
	var first error
	for _, r := range results {
		if r.Err == nil {
			ok++
		} else if first == nil {
			first = r.Err
		}
	}
	if ok >= required {
		return nil
	}
	return &PartialCommitError{Succeeded: ok, Required: required, Err: first}
}
