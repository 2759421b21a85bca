package core

import (
	"context"
	"time"
)

// BadgeEvaluation is the message published whenever a user action may have
// unlocked a badge. One message results in exactly one evaluator run.
type BadgeEvaluation struct {
	UserID     string    `json:"user_id"`
	Reason     string    `json:"reason,omitempty"` // eg. "learning.complete", "community.register"
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Broker decouples request handlers from the badge worker.
type Broker interface {
	PublishBadgeEvaluation(ctx context.Context, msg BadgeEvaluation) error
	Close() error
}
