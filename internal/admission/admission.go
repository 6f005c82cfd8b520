// Package admission decides whether an inbound question is accepted before
// any expensive processing happens.
//
// The policy is a sliding-window quota: a user may have at most
// daily_user_limit request log entries younger than limit_window_seconds.
// The count check and the eventual log append (done by the worker after
// processing) are deliberately not atomic — two concurrent requests at the
// boundary can both be admitted. Failed answers write a log entry too, so
// they consume quota. Both behaviors are documented product decisions, not
// bugs; see DESIGN.md.
package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/answerbot-ai/answerbot/internal/settings"
)

// UsageCounter is the windowed-count view of the request ledger.
// Interface defined here, by the consumer; ledger.Store satisfies it.
type UsageCounter interface {
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Decision is the outcome of an admission check. Rejection is a normal
// outcome, not an error.
type Decision struct {
	Admitted bool
	Limit    int // quota in effect, for user-facing rejection messages
	Count    int // entries already in the window
}

// Controller performs admission checks. Read-only against the ledger.
type Controller struct {
	cache    *settings.Cache
	usage    UsageCounter
	failOpen bool
	logger   *slog.Logger
}

// New creates a Controller.
//
// failOpen selects the policy when the ledger read fails: false rejects the
// request (default, protects the model budget), true admits it (prioritizes
// availability). The choice is deployment configuration, never silent.
func New(cache *settings.Cache, usage UsageCounter, failOpen bool, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cache:    cache,
		usage:    usage,
		failOpen: failOpen,
		logger:   logger,
	}
}

// Admit checks the user's quota as of now.
//
// count == limit rejects: the limit is inclusive of requests already used,
// exclusive of the next one. On a ledger read failure the returned error is
// non-nil and the decision follows the configured fail-open/fail-closed
// policy; the caller decides how to surface it.
func (c *Controller) Admit(ctx context.Context, userID string, now time.Time) (Decision, error) {
	limit := c.cache.Int(settings.KeyDailyUserLimit, settings.DefaultDailyUserLimit)
	window := c.cache.Int(settings.KeyLimitWindowSeconds, settings.DefaultLimitWindowSeconds)
	windowStart := now.Add(-time.Duration(window) * time.Second)

	count, err := c.usage.CountSince(ctx, userID, windowStart)
	if err != nil {
		c.logger.Error("usage count failed",
			"user", userID,
			"fail_open", c.failOpen,
			"error", err,
		)
		return Decision{Admitted: c.failOpen, Limit: limit}, err
	}

	if count >= limit {
		c.logger.Info("request rejected by quota",
			"user", userID,
			"count", count,
			"limit", limit,
		)
		return Decision{Admitted: false, Limit: limit, Count: count}, nil
	}

	return Decision{Admitted: true, Limit: limit, Count: count}, nil
}
