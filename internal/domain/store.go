package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// BetFilter narrows bet list queries.
type BetFilter struct {
	UserID   string      // match creator or opponent
	Statuses []BetStatus // empty means any status
	Category string      // exact category match
	Query    string      // case-insensitive title/description search
}

// BetStore persists the bet aggregate. The hot lifecycle fields (status,
// outcome) live in indexed columns; the evidence/comment/vote/participant
// ledger is a detail partition written as one unit. UpdateStatus and
// Complete are conditional updates: they only take effect while the stored
// status is one of the expected values, which makes the transition to a
// terminal status an at-most-once operation under concurrency.
type BetStore interface {
	Create(ctx context.Context, bet Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	// UpdateStatus moves the bet to the new status if its current status is
	// in from. It returns ErrInvalidState when the precondition fails and
	// ErrNotFound when the bet does not exist.
	UpdateStatus(ctx context.Context, id string, from []BetStatus, to BetStatus) error
	// Complete sets status=completed together with the outcome, under the
	// same conditional semantics as UpdateStatus.
	Complete(ctx context.Context, id string, from []BetStatus, outcome BetOutcome) error
	// UpdateDetail rewrites the bet's ledger partition. Callers serialize
	// concurrent detail writes per bet (see LockManager).
	UpdateDetail(ctx context.Context, bet Bet) error
	List(ctx context.Context, f BetFilter, opts ListOpts) ([]Bet, error)
	// ListExpired returns active bets whose deadline has passed.
	ListExpired(ctx context.Context, cutoff time.Time, opts ListOpts) ([]Bet, error)
	Count(ctx context.Context) (int64, error)
}

// UserStatsStore persists per-user aggregates. Save performs a version
// compare-and-swap and returns ErrConflict when the row changed underneath
// the caller.
type UserStatsStore interface {
	Get(ctx context.Context, userID string) (UserStats, error)
	Save(ctx context.Context, stats UserStats) error
	// EnsureExists creates a zeroed stats row when the user has none.
	EnsureExists(ctx context.Context, userID string) error
	ListTop(ctx context.Context, limit int) ([]UserStats, error)
}

// NotificationStore persists per-user notification inboxes. Writes are
// fire-and-forget from the caller's point of view: a failed insert must not
// unwind the bet mutation that produced it.
type NotificationStore interface {
	Add(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Notification, error)
	MarkRead(ctx context.Context, userID string, id int64) error
}

// ActivityStore persists the append-only activity feed.
type ActivityStore interface {
	Add(ctx context.Context, a Activity) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Activity, error)
	// ListPublic returns recent public entries for the shared feed.
	ListPublic(ctx context.Context, opts ListOpts) ([]Activity, error)
}
