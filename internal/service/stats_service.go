package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/betpal/betpal/internal/domain"
)

const (
	// statsLockTTL bounds a crashed holder of a per-user stats lock.
	statsLockTTL = 5 * time.Second

	// statsSaveRetries is how many times a version conflict is reloaded
	// and retried before giving up.
	statsSaveRetries = 3
)

// StatsService maintains the per-user win/loss aggregates. Each update runs
// under a per-user distributed lock, with the store's version
// compare-and-swap as the second line of defense against concurrent writers.
type StatsService struct {
	stats  domain.UserStatsStore
	locks  domain.LockManager
	logger *slog.Logger
}

// NewStatsService creates a StatsService.
func NewStatsService(stats domain.UserStatsStore, locks domain.LockManager, logger *slog.Logger) *StatsService {
	return &StatsService{
		stats:  stats,
		locks:  locks,
		logger: logger.With(slog.String("component", "stats_service")),
	}
}

// ApplyOutcome folds a completed bet's outcome into both parties'
// aggregates. Voided outcomes apply no deltas. A user with no stats row is
// skipped; per-user failures are joined so one bad row never blocks the
// other party's update.
func (s *StatsService) ApplyOutcome(ctx context.Context, creatorID, opponentID string, outcome domain.BetOutcome) error {
	creatorResult, opponentResult, ok := domain.OutcomeResults(outcome)
	if !ok {
		return nil
	}

	var errs []error
	if creatorID != "" {
		if err := s.applyOne(ctx, creatorID, creatorResult); err != nil {
			errs = append(errs, err)
		}
	}
	if opponentID != "" {
		if err := s.applyOne(ctx, opponentID, opponentResult); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *StatsService) applyOne(ctx context.Context, userID string, result domain.ResultType) error {
	unlock, err := s.locks.Acquire(ctx, "stats:"+userID, statsLockTTL)
	if err != nil {
		return err
	}
	defer unlock()

	for attempt := 0; attempt < statsSaveRetries; attempt++ {
		stats, err := s.stats.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "no stats row, skipping user",
					slog.String("user_id", userID),
				)
				return nil
			}
			return err
		}

		stats.Apply(result)

		err = s.stats.Save(ctx, stats)
		if err == nil {
			s.logger.InfoContext(ctx, "stats updated",
				slog.String("user_id", userID),
				slog.String("result", string(result)),
				slog.Int("current_streak", stats.CurrentStreak),
			)
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		// Version conflict: reload and retry.
	}
	return domain.ErrConflict
}

// Ensure creates a zeroed stats row for the user when none exists.
func (s *StatsService) Ensure(ctx context.Context, userID string) error {
	return s.stats.EnsureExists(ctx, userID)
}

// Get returns a user's aggregates.
func (s *StatsService) Get(ctx context.Context, userID string) (domain.UserStats, error) {
	return s.stats.Get(ctx, userID)
}

// Leaderboard returns the top users by win rate.
func (s *StatsService) Leaderboard(ctx context.Context, limit int) ([]domain.UserStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.stats.ListTop(ctx, limit)
}
