package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betpal/betpal/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. The bet aggregate is
// a single row: hot lifecycle fields in indexed columns, the
// participant/evidence/comment/vote ledger in a JSONB detail partition.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// betDetail is the JSONB shape of the ledger partition.
type betDetail struct {
	Participants []domain.Participant `json:"participants"`
	Evidence     []domain.Evidence    `json:"evidence"`
	Comments     []domain.Comment     `json:"comments"`
	Votes        []domain.Vote        `json:"votes"`
}

func detailOf(b domain.Bet) betDetail {
	return betDetail{
		Participants: b.Participants,
		Evidence:     b.Evidence,
		Comments:     b.Comments,
		Votes:        b.Votes,
	}
}

const betCols = `id, title, description, category, creator_id, creator_name,
	opponent_id, opponent_name, stake, is_monetary, monetary_stake,
	deadline, status, outcome, privacy, detail, created_at, updated_at`

// Create inserts a new bet row.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	detailJSON, err := json.Marshal(detailOf(b))
	if err != nil {
		return fmt.Errorf("postgres: marshal bet detail: %w", err)
	}

	var stakeJSON []byte
	if b.MonetaryStake != nil {
		stakeJSON, err = json.Marshal(b.MonetaryStake)
		if err != nil {
			return fmt.Errorf("postgres: marshal monetary stake: %w", err)
		}
	}

	var opponentID, opponentName *string
	if b.OpponentID != "" {
		opponentID = &b.OpponentID
		opponentName = &b.OpponentName
	}
	var outcome *string
	if b.Outcome != "" {
		o := string(b.Outcome)
		outcome = &o
	}

	const query = `
		INSERT INTO bets (
			id, title, description, category, creator_id, creator_name,
			opponent_id, opponent_name, stake, is_monetary, monetary_stake,
			deadline, status, outcome, privacy, detail, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		b.ID, b.Title, b.Description, b.Category, b.CreatorID, b.CreatorName,
		opponentID, opponentName, b.Stake, b.IsMonetary, stakeJSON,
		b.Deadline, string(b.Status), outcome, string(b.Privacy), detailJSON, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %s: %w", b.ID, err)
	}
	return nil
}

// scanBet scans a single bet row into a domain.Bet.
func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b            domain.Bet
		opponentID   *string
		opponentName *string
		stakeJSON    []byte
		outcome      *string
		status       string
		privacy      string
		detailJSON   []byte
	)
	err := row.Scan(
		&b.ID, &b.Title, &b.Description, &b.Category, &b.CreatorID, &b.CreatorName,
		&opponentID, &opponentName, &b.Stake, &b.IsMonetary, &stakeJSON,
		&b.Deadline, &status, &outcome, &privacy, &detailJSON,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}

	if opponentID != nil {
		b.OpponentID = *opponentID
	}
	if opponentName != nil {
		b.OpponentName = *opponentName
	}
	if outcome != nil {
		b.Outcome = domain.BetOutcome(*outcome)
	}
	b.Status = domain.BetStatus(status)
	b.Privacy = domain.BetPrivacy(privacy)

	if len(stakeJSON) > 0 {
		var ms domain.MonetaryStake
		if err := json.Unmarshal(stakeJSON, &ms); err != nil {
			return domain.Bet{}, fmt.Errorf("postgres: unmarshal monetary stake: %w", err)
		}
		b.MonetaryStake = &ms
	}
	if len(detailJSON) > 0 {
		var d betDetail
		if err := json.Unmarshal(detailJSON, &d); err != nil {
			return domain.Bet{}, fmt.Errorf("postgres: unmarshal bet detail: %w", err)
		}
		b.Participants = d.Participants
		b.Evidence = d.Evidence
		b.Comments = d.Comments
		b.Votes = d.Votes
	}
	return b, nil
}

// GetByID retrieves a bet by its primary key.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

func statusStrings(statuses []domain.BetStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// UpdateStatus conditionally moves a bet to a new status. The update only
// takes effect while the stored status is one of from; otherwise
// domain.ErrInvalidState is returned (or domain.ErrNotFound when no such bet
// exists).
func (s *BetStore) UpdateStatus(ctx context.Context, id string, from []domain.BetStatus, to domain.BetStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)`,
		string(to), id, statusStrings(from),
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, id)
	}
	return nil
}

// Complete conditionally moves a bet to completed with its outcome set, so
// the outcome-iff-completed invariant holds in a single statement. Like
// UpdateStatus, only the first of two racing completions succeeds.
func (s *BetStore) Complete(ctx context.Context, id string, from []domain.BetStatus, outcome domain.BetOutcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET status = $1, outcome = $2, updated_at = NOW()
		 WHERE id = $3 AND status = ANY($4)`,
		string(domain.BetStatusCompleted), string(outcome), id, statusStrings(from),
	)
	if err != nil {
		return fmt.Errorf("postgres: complete bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrStale(ctx, id)
	}
	return nil
}

// missOrStale distinguishes a failed conditional update between a missing
// row and a status precondition miss.
func (s *BetStore) missOrStale(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bets WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check bet %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidState
}

// UpdateDetail rewrites the bet's ledger partition. Per-bet serialization is
// the caller's responsibility (BetService holds the bet lock).
func (s *BetStore) UpdateDetail(ctx context.Context, b domain.Bet) error {
	detailJSON, err := json.Marshal(detailOf(b))
	if err != nil {
		return fmt.Errorf("postgres: marshal bet detail: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET detail = $1, updated_at = NOW() WHERE id = $2`,
		detailJSON, b.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet detail %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns bets matching the filter, newest first.
func (s *BetStore) List(ctx context.Context, f domain.BetFilter, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.UserID != "" {
		query += fmt.Sprintf(" AND (creator_id = $%d OR opponent_id = $%d)", argIdx, argIdx)
		args = append(args, f.UserID)
		argIdx++
	}
	if len(f.Statuses) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statusStrings(f.Statuses))
		argIdx++
	}
	if f.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, f.Category)
		argIdx++
	}
	if f.Query != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d) AND privacy <> 'private'", argIdx, argIdx)
		args = append(args, "%"+f.Query+"%")
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryBets(ctx, query, args...)
}

// ListExpired returns active bets whose deadline is before the cutoff,
// soonest deadline first.
func (s *BetStore) ListExpired(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets
		WHERE status = 'active' AND deadline < $1
		ORDER BY deadline ASC`
	args := []any{cutoff}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
	}
	return s.queryBets(ctx, query, args...)
}

func (s *BetStore) queryBets(ctx context.Context, query string, args ...any) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

// Count returns the total number of bets.
func (s *BetStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM bets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count bets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
