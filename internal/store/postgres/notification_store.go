package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betpal/betpal/internal/domain"
)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by the given pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Add appends a notification to the user's inbox.
func (s *NotificationStore) Add(ctx context.Context, n domain.Notification) error {
	var relatedBetID *string
	if n.RelatedBetID != "" {
		relatedBetID = &n.RelatedBetID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (user_id, kind, title, message, related_bet_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.UserID, n.Kind, n.Title, n.Message, relatedBetID,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert notification for %s: %w", n.UserID, err)
	}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	query := `SELECT id, user_id, kind, title, message, related_bet_id, is_read, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $3"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n            domain.Notification
			relatedBetID *string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &relatedBetID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		if relatedBetID != nil {
			n.RelatedBetID = *relatedBetID
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list notifications rows: %w", err)
	}
	return out, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationStore) MarkRead(ctx context.Context, userID string, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark notification %d read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.NotificationStore = (*NotificationStore)(nil)
