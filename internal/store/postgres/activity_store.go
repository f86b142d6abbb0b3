package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betpal/betpal/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL. The feed
// is append-only; entries are never updated or deleted.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Add appends an entry to the activity feed.
func (s *ActivityStore) Add(ctx context.Context, a domain.Activity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity_feed (user_id, kind, target_id, content, privacy)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.UserID, a.Kind, a.TargetID, a.Content, string(a.Privacy),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert activity for %s: %w", a.UserID, err)
	}
	return nil
}

// ListByUser returns the user's own activity, newest first.
func (s *ActivityStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Activity, error) {
	query := `SELECT id, user_id, kind, target_id, content, privacy, created_at
		FROM activity_feed WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $3"
			args = append(args, opts.Offset)
		}
	}
	return s.queryActivity(ctx, query, args...)
}

// ListPublic returns recent non-private entries for the shared feed.
func (s *ActivityStore) ListPublic(ctx context.Context, opts domain.ListOpts) ([]domain.Activity, error) {
	query := `SELECT id, user_id, kind, target_id, content, privacy, created_at
		FROM activity_feed WHERE privacy = 'public' ORDER BY created_at DESC`
	var args []any
	if opts.Limit > 0 {
		query += " LIMIT $1"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $2"
			args = append(args, opts.Offset)
		}
	}
	return s.queryActivity(ctx, query, args...)
}

func (s *ActivityStore) queryActivity(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var (
			a       domain.Activity
			privacy string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &a.TargetID, &a.Content, &privacy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		a.Privacy = domain.BetPrivacy(privacy)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity rows: %w", err)
	}
	return out, nil
}

var _ domain.ActivityStore = (*ActivityStore)(nil)
