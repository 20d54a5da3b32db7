// Package session caches the contribution-graph question a user is answering.
package session

import (
	"context"
	"time"

	"github.com/korjavin/commitquizbot/models"
)

// DefaultTTL is how long an unanswered question stays answerable.
const DefaultTTL = 30 * time.Minute

// Store holds at most one in-flight question per user.
type Store interface {
	Put(ctx context.Context, userID int64, q models.ContributionQuestion) error
	Get(ctx context.Context, userID int64) (models.ContributionQuestion, bool, error)
	Delete(ctx context.Context, userID int64) error
}
