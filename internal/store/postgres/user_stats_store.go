package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betpal/betpal/internal/domain"
)

// UserStatsStore implements domain.UserStatsStore using PostgreSQL. Save is
// an optimistic write: the row version is checked and bumped in the same
// statement, and a stale version surfaces as domain.ErrConflict.
type UserStatsStore struct {
	pool *pgxpool.Pool
}

// NewUserStatsStore creates a new UserStatsStore backed by the given pool.
func NewUserStatsStore(pool *pgxpool.Pool) *UserStatsStore {
	return &UserStatsStore{pool: pool}
}

const statsCols = `user_id, wins, losses, draws, current_streak,
	longest_streak, total_bets, win_rate, version, updated_at`

func scanStats(row pgx.Row) (domain.UserStats, error) {
	var s domain.UserStats
	err := row.Scan(
		&s.UserID, &s.Wins, &s.Losses, &s.Draws, &s.CurrentStreak,
		&s.LongestStreak, &s.TotalBets, &s.WinRate, &s.Version, &s.UpdatedAt,
	)
	return s, err
}

// Get retrieves a user's stats row.
func (s *UserStatsStore) Get(ctx context.Context, userID string) (domain.UserStats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statsCols+` FROM user_stats WHERE user_id = $1`, userID)
	stats, err := scanStats(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserStats{}, domain.ErrNotFound
		}
		return domain.UserStats{}, fmt.Errorf("postgres: get stats %s: %w", userID, err)
	}
	return stats, nil
}

// Save writes the stats row if the stored version still matches
// stats.Version, bumping the version in the same statement. A version miss
// returns domain.ErrConflict so the caller can reload and retry.
func (s *UserStatsStore) Save(ctx context.Context, stats domain.UserStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_stats SET
			wins = $1, losses = $2, draws = $3,
			current_streak = $4, longest_streak = $5,
			total_bets = $6, win_rate = $7,
			version = version + 1, updated_at = NOW()
		 WHERE user_id = $8 AND version = $9`,
		stats.Wins, stats.Losses, stats.Draws,
		stats.CurrentStreak, stats.LongestStreak,
		stats.TotalBets, stats.WinRate,
		stats.UserID, stats.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: save stats %s: %w", stats.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// EnsureExists creates a zeroed stats row when the user has none.
func (s *UserStatsStore) EnsureExists(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_stats (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("postgres: ensure stats %s: %w", userID, err)
	}
	return nil
}

// ListTop returns the highest win-rate users, most wins first among ties.
func (s *UserStatsStore) ListTop(ctx context.Context, limit int) ([]domain.UserStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statsCols+` FROM user_stats
		 WHERE total_bets > 0
		 ORDER BY win_rate DESC, wins DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list top stats: %w", err)
	}
	defer rows.Close()

	var out []domain.UserStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stats: %w", err)
		}
		out = append(out, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list top stats rows: %w", err)
	}
	return out, nil
}

var _ domain.UserStatsStore = (*UserStatsStore)(nil)
