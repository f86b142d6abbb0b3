// Package service implements the bet lifecycle: status transitions, outcome
// settlement, dispute voting and the evidence/comment ledger.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/betpal/betpal/internal/domain"
	"github.com/betpal/betpal/internal/notify"
)

const (
	// betLockTTL bounds how long a crashed holder can block a bet's ledger.
	betLockTTL = 10 * time.Second

	// multipartThreshold is the attachment size above which uploads switch
	// to the multipart path.
	multipartThreshold = 8 << 20
)

// alerter is the operator alert surface. *notify.Notifier satisfies it.
type alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// VotingRules parameterize dispute auto-resolution.
type VotingRules struct {
	// MinVotes is the minimum ballot count before a dispute can resolve.
	MinVotes int
	// Threshold is the vote share a single leading choice must strictly
	// exceed.
	Threshold float64
}

// DefaultVotingRules matches the product rule: three votes, more than 75%
// agreement.
func DefaultVotingRules() VotingRules {
	return VotingRules{MinVotes: 3, Threshold: 0.75}
}

// BetServiceDeps bundles the collaborators a BetService needs.
type BetServiceDeps struct {
	Bets          domain.BetStore
	Stats         *StatsService
	Notifications domain.NotificationStore
	Activity      domain.ActivityStore
	Cache         domain.BetCache
	Locks         domain.LockManager
	Bus           domain.SignalBus
	Blobs         domain.BlobWriter
	Alerts        *notify.Notifier
	Rules         VotingRules
	Logger        *slog.Logger
}

// BetService orchestrates all bet mutations. The bet store is the source of
// truth; the cache, notification inbox, activity feed, stats aggregates,
// WebSocket bus and operator alerts are downstream effects that never unwind
// a committed mutation.
type BetService struct {
	bets    domain.BetStore
	stats   *StatsService
	notifs  domain.NotificationStore
	feed    domain.ActivityStore
	cache   domain.BetCache
	locks   domain.LockManager
	bus     domain.SignalBus
	blobs   domain.BlobWriter
	alerts  alerter
	rules   VotingRules
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewBetService creates a BetService from its dependencies.
func NewBetService(deps BetServiceDeps) *BetService {
	rules := deps.Rules
	if rules.MinVotes <= 0 {
		rules = DefaultVotingRules()
	}
	s := &BetService{
		bets:    deps.Bets,
		stats:   deps.Stats,
		notifs:  deps.Notifications,
		feed:    deps.Activity,
		cache:   deps.Cache,
		locks:   deps.Locks,
		bus:     deps.Bus,
		blobs:   deps.Blobs,
		rules:   rules,
		logger:  deps.Logger.With(slog.String("component", "bet_service")),
		nowFunc: time.Now,
	}
	if deps.Alerts != nil {
		s.alerts = deps.Alerts
	}
	return s
}

func (s *BetService) now() time.Time {
	return s.nowFunc().UTC()
}

// CreateBetInput carries the fields for a new bet.
type CreateBetInput struct {
	Title         string
	Description   string
	Category      string
	CreatorID     string
	CreatorName   string
	OpponentID    string
	OpponentName  string
	Stake         string
	IsMonetary    bool
	MonetaryStake *domain.MonetaryStake
	Deadline      time.Time
	Privacy       domain.BetPrivacy
}

// Create stores a new bet in pending status, records the creator (and
// opponent, when named) as participants, notifies the opponent of the
// request and writes an activity entry.
func (s *BetService) Create(ctx context.Context, in CreateBetInput) (domain.Bet, error) {
	if in.Title == "" || in.CreatorID == "" || in.Stake == "" || in.Deadline.IsZero() {
		return domain.Bet{}, domain.ErrInvalidArgument
	}
	if in.Privacy == "" {
		in.Privacy = domain.PrivacyFriends
	}
	switch in.Privacy {
	case domain.PrivacyPublic, domain.PrivacyFriends, domain.PrivacyPrivate:
	default:
		return domain.Bet{}, domain.ErrInvalidArgument
	}
	if in.IsMonetary && in.MonetaryStake == nil {
		return domain.Bet{}, domain.ErrInvalidArgument
	}

	now := s.now()
	bet := domain.Bet{
		ID:            uuid.New().String(),
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		CreatorID:     in.CreatorID,
		CreatorName:   in.CreatorName,
		OpponentID:    in.OpponentID,
		OpponentName:  in.OpponentName,
		Stake:         in.Stake,
		IsMonetary:    in.IsMonetary,
		MonetaryStake: in.MonetaryStake,
		Deadline:      in.Deadline,
		Status:        domain.BetStatusPending,
		Privacy:       in.Privacy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	bet.AddParticipant(in.CreatorID, in.CreatorName, domain.RoleCreator, now)
	if in.OpponentID != "" {
		bet.AddParticipant(in.OpponentID, in.OpponentName, domain.RoleOpponent, now)
	}

	if err := s.bets.Create(ctx, bet); err != nil {
		return domain.Bet{}, err
	}

	s.ensureStats(ctx, in.CreatorID, in.OpponentID)
	if in.OpponentID != "" {
		s.addNotification(ctx, domain.Notification{
			UserID:       in.OpponentID,
			Kind:         domain.NotifyBetRequest,
			Title:        "New bet request",
			Message:      fmt.Sprintf("%s challenged you: %s", in.CreatorName, in.Title),
			RelatedBetID: bet.ID,
		})
	}
	s.addActivity(ctx, domain.Activity{
		UserID:   in.CreatorID,
		Kind:     domain.ActivityCreatedBet,
		TargetID: bet.ID,
		Content:  in.Title,
		Privacy:  bet.Privacy,
	})
	s.publish(ctx, bet, "bet_created")

	return bet, nil
}

// UpdateStatus moves a bet along the lifecycle graph on behalf of one of its
// parties. Completion is not reachable here; callers settle bets through
// RecordOutcome so a completed bet always carries an outcome.
func (s *BetService) UpdateStatus(ctx context.Context, betID, actorID string, newStatus domain.BetStatus) (domain.Bet, error) {
	if !domain.ValidStatus(newStatus) || newStatus == domain.BetStatusCompleted {
		return domain.Bet{}, domain.ErrInvalidArgument
	}

	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, err
	}
	if !bet.IsParty(actorID) {
		return domain.Bet{}, domain.ErrUnauthorized
	}
	if !domain.CanTransition(bet.Status, newStatus) {
		return domain.Bet{}, domain.ErrInvalidTransition
	}

	if err := s.bets.UpdateStatus(ctx, betID, []domain.BetStatus{bet.Status}, newStatus); err != nil {
		return domain.Bet{}, err
	}
	bet.Status = newStatus
	bet.UpdatedAt = s.now()

	s.invalidate(ctx, betID)
	if other := bet.Counterpart(actorID); other != "" {
		s.addNotification(ctx, domain.Notification{
			UserID:       other,
			Kind:         domain.NotifyBetStatus,
			Title:        "Bet status changed",
			Message:      fmt.Sprintf("%q is now %s", bet.Title, newStatus),
			RelatedBetID: betID,
		})
	}
	s.addActivity(ctx, domain.Activity{
		UserID:   actorID,
		Kind:     domain.ActivityUpdatedBet,
		TargetID: betID,
		Content:  string(newStatus),
		Privacy:  bet.Privacy,
	})
	s.publish(ctx, bet, "bet_updated")

	if newStatus == domain.BetStatusDisputed {
		s.alert(ctx, notify.EventDisputeOpened, "Dispute opened",
			fmt.Sprintf("Bet %s (%q) is now disputed", betID, bet.Title))
	}

	return bet, nil
}

// RecordOutcome settles an active or disputed bet with the given outcome on
// behalf of one of its parties. The conditional store update makes
// completion at-most-once: the second of two racing settlements observes
// ErrInvalidState. Holding the bet lock keeps a concurrent ledger write
// (a vote, evidence, a comment) from landing on a bet mid-settlement.
func (s *BetService) RecordOutcome(ctx context.Context, betID, actorID string, outcome domain.BetOutcome) (domain.Bet, error) {
	if !domain.ValidOutcome(outcome) {
		return domain.Bet{}, domain.ErrInvalidArgument
	}

	unlock, err := s.locks.Acquire(ctx, "bet:"+betID, betLockTTL)
	if err != nil {
		return domain.Bet{}, err
	}
	defer unlock()

	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, err
	}
	if !bet.IsParty(actorID) {
		return domain.Bet{}, domain.ErrUnauthorized
	}

	return s.complete(ctx, bet, outcome, false)
}

// complete performs the shared settlement path used by RecordOutcome and by
// vote auto-resolution. bet carries the pre-completion snapshot.
func (s *BetService) complete(ctx context.Context, bet domain.Bet, outcome domain.BetOutcome, viaDispute bool) (domain.Bet, error) {
	switch bet.Status {
	case domain.BetStatusActive, domain.BetStatusDisputed:
	default:
		return domain.Bet{}, domain.ErrInvalidState
	}

	from := []domain.BetStatus{domain.BetStatusActive, domain.BetStatusDisputed}
	if err := s.bets.Complete(ctx, bet.ID, from, outcome); err != nil {
		return domain.Bet{}, err
	}
	bet.Status = domain.BetStatusCompleted
	bet.Outcome = outcome
	bet.UpdatedAt = s.now()

	s.invalidate(ctx, bet.ID)

	if s.stats != nil {
		if err := s.stats.ApplyOutcome(ctx, bet.CreatorID, bet.OpponentID, outcome); err != nil {
			s.logger.ErrorContext(ctx, "stats update failed",
				slog.String("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.settlementNotifications(ctx, bet, viaDispute)
	s.publish(ctx, bet, "bet_completed")

	if viaDispute {
		s.alert(ctx, notify.EventDisputeResolved, "Dispute resolved",
			fmt.Sprintf("Bet %s (%q) resolved by vote: %s", bet.ID, bet.Title, outcome))
	}

	return bet, nil
}

// settlementNotifications writes win/loss inbox entries (none for draws or
// voided bets), the winner's activity entry and, for vote resolutions, a
// dispute_resolved entry for both parties.
func (s *BetService) settlementNotifications(ctx context.Context, bet domain.Bet, viaDispute bool) {
	var winnerID, loserID string
	switch bet.Outcome {
	case domain.OutcomeWinCreator:
		winnerID, loserID = bet.CreatorID, bet.OpponentID
	case domain.OutcomeWinOpponent:
		winnerID, loserID = bet.OpponentID, bet.CreatorID
	}

	if winnerID != "" {
		s.addNotification(ctx, domain.Notification{
			UserID:       winnerID,
			Kind:         domain.NotifyWin,
			Title:        "You won!",
			Message:      fmt.Sprintf("You won the bet %q", bet.Title),
			RelatedBetID: bet.ID,
		})
		s.addActivity(ctx, domain.Activity{
			UserID:   winnerID,
			Kind:     domain.ActivityWonBet,
			TargetID: bet.ID,
			Content:  bet.Title,
			Privacy:  bet.Privacy,
		})
	}
	if loserID != "" {
		s.addNotification(ctx, domain.Notification{
			UserID:       loserID,
			Kind:         domain.NotifyLoss,
			Title:        "Bet lost",
			Message:      fmt.Sprintf("You lost the bet %q", bet.Title),
			RelatedBetID: bet.ID,
		})
	}

	if viaDispute {
		for _, userID := range []string{bet.CreatorID, bet.OpponentID} {
			if userID == "" {
				continue
			}
			s.addNotification(ctx, domain.Notification{
				UserID:       userID,
				Kind:         domain.NotifyDisputeResolved,
				Title:        "Dispute resolved",
				Message:      fmt.Sprintf("The dispute over %q was resolved: %s", bet.Title, bet.Outcome),
				RelatedBetID: bet.ID,
			})
		}
	}
}

// CastVote records a community resolution vote on a disputed bet. The vote
// ledger rewrite runs under the per-bet lock; a repeat vote from the same
// user replaces their earlier ballot. When the tally reaches the resolution
// rule the bet settles through the shared completion path.
func (s *BetService) CastVote(ctx context.Context, betID, voterID, voterName string, choice domain.VoteChoice) (domain.Bet, error) {
	if voterID == "" || !domain.ValidVoteChoice(choice) {
		return domain.Bet{}, domain.ErrInvalidArgument
	}

	unlock, err := s.locks.Acquire(ctx, "bet:"+betID, betLockTTL)
	if err != nil {
		return domain.Bet{}, err
	}
	defer unlock()

	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, err
	}
	if bet.Status != domain.BetStatusDisputed {
		return domain.Bet{}, domain.ErrInvalidState
	}

	replaced, err := bet.PutVote(voterID, voterName, choice, s.now())
	if err != nil {
		return domain.Bet{}, err
	}
	if err := s.bets.UpdateDetail(ctx, bet); err != nil {
		return domain.Bet{}, err
	}
	s.invalidate(ctx, betID)

	tally := bet.Tally()
	s.logger.InfoContext(ctx, "vote recorded",
		slog.String("bet_id", betID),
		slog.String("voter_id", voterID),
		slog.String("choice", string(choice)),
		slog.Bool("replaced", replaced),
		slog.Int("total_votes", tally.Total),
	)

	winner, ok := tally.Winner(s.rules.MinVotes, s.rules.Threshold)
	if !ok {
		s.publish(ctx, bet, "bet_vote")
		return bet, nil
	}
	return s.complete(ctx, bet, winner.Outcome(), true)
}

// EvidenceInput carries a new evidence submission. Attachment, when set,
// holds the raw bytes of an image or video; the content field then becomes
// the storage key rather than inline data.
type EvidenceInput struct {
	UserID         string
	Username       string
	Type           domain.EvidenceType
	Content        string
	Attachment     io.Reader
	AttachmentSize int64
	ContentType    string
}

// AddEvidence appends an evidence entry to the bet's ledger. Image and video
// attachments are offloaded to blob storage under evidence/{betID}/{uuid}.
func (s *BetService) AddEvidence(ctx context.Context, betID string, in EvidenceInput) (domain.Bet, error) {
	if !domain.ValidEvidenceType(in.Type) {
		return domain.Bet{}, domain.ErrInvalidArgument
	}

	unlock, err := s.locks.Acquire(ctx, "bet:"+betID, betLockTTL)
	if err != nil {
		return domain.Bet{}, err
	}
	defer unlock()

	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, err
	}
	if bet.Status.Terminal() {
		return domain.Bet{}, domain.ErrInvalidState
	}

	content := in.Content
	if in.Attachment != nil {
		key, err := s.storeAttachment(ctx, betID, in)
		if err != nil {
			return domain.Bet{}, err
		}
		content = key
	}

	ev := domain.Evidence{
		ID:          uuid.New().String(),
		UserID:      in.UserID,
		Username:    in.Username,
		Type:        in.Type,
		Content:     content,
		SubmittedAt: s.now(),
	}
	if err := bet.AppendEvidence(ev); err != nil {
		return domain.Bet{}, err
	}
	if err := s.bets.UpdateDetail(ctx, bet); err != nil {
		return domain.Bet{}, err
	}
	s.invalidate(ctx, betID)

	if other := bet.Counterpart(in.UserID); other != "" {
		s.addNotification(ctx, domain.Notification{
			UserID:       other,
			Kind:         domain.NotifyEvidence,
			Title:        "New evidence",
			Message:      fmt.Sprintf("%s added evidence to %q", in.Username, bet.Title),
			RelatedBetID: betID,
		})
	}
	s.publish(ctx, bet, "bet_evidence")

	return bet, nil
}

// storeAttachment uploads inline evidence bytes to blob storage and returns
// the object key. Large payloads take the multipart path.
func (s *BetService) storeAttachment(ctx context.Context, betID string, in EvidenceInput) (string, error) {
	if s.blobs == nil {
		return "", domain.ErrInvalidArgument
	}
	key := fmt.Sprintf("evidence/%s/%s", betID, uuid.New().String())
	if in.AttachmentSize > multipartThreshold {
		if err := s.blobs.PutMultipart(ctx, key, in.Attachment, multipartThreshold); err != nil {
			return "", err
		}
		return key, nil
	}
	if err := s.blobs.Put(ctx, key, in.Attachment, in.ContentType); err != nil {
		return "", err
	}
	return key, nil
}

// CommentInput carries a new comment. A non-empty ParentID threads the
// comment under an existing one.
type CommentInput struct {
	UserID   string
	Username string
	Content  string
	ParentID string
}

// AddComment appends a comment to the bet's discussion thread. A dangling
// ParentID is rejected with ErrInvalidArgument.
func (s *BetService) AddComment(ctx context.Context, betID string, in CommentInput) (domain.Bet, error) {
	unlock, err := s.locks.Acquire(ctx, "bet:"+betID, betLockTTL)
	if err != nil {
		return domain.Bet{}, err
	}
	defer unlock()

	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, err
	}

	now := s.now()
	c := domain.Comment{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		Username:  in.Username,
		Content:   in.Content,
		ParentID:  in.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := bet.AppendComment(c); err != nil {
		return domain.Bet{}, err
	}
	if err := s.bets.UpdateDetail(ctx, bet); err != nil {
		return domain.Bet{}, err
	}
	s.invalidate(ctx, betID)
	s.publish(ctx, bet, "bet_comment")

	return bet, nil
}

// Get retrieves a bet, cache-aside: a cache hit skips the store, a miss
// fills the cache.
func (s *BetService) Get(ctx context.Context, betID string) (domain.Bet, error) {
	if s.cache != nil {
		if bet, err := s.cache.Get(ctx, betID); err == nil {
			return bet, nil
		}
	}

	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		return domain.Bet{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, bet); err != nil {
			s.logger.WarnContext(ctx, "bet cache set failed",
				slog.String("bet_id", betID),
				slog.String("error", err.Error()),
			)
		}
	}
	return bet, nil
}

// ListByUser returns bets the user participates in, optionally narrowed to a
// status set and a category.
func (s *BetService) ListByUser(ctx context.Context, userID string, statuses []domain.BetStatus, category string, opts domain.ListOpts) ([]domain.Bet, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	for _, st := range statuses {
		if !domain.ValidStatus(st) {
			return nil, domain.ErrInvalidArgument
		}
	}
	return s.bets.List(ctx, domain.BetFilter{UserID: userID, Statuses: statuses, Category: category}, opts)
}

// Search returns non-private bets whose title or description matches the
// query.
func (s *BetService) Search(ctx context.Context, query string, opts domain.ListOpts) ([]domain.Bet, error) {
	if query == "" {
		return nil, domain.ErrInvalidArgument
	}
	return s.bets.List(ctx, domain.BetFilter{Query: query}, opts)
}

// ListExpired returns active bets whose deadline has passed.
func (s *BetService) ListExpired(ctx context.Context, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.bets.ListExpired(ctx, s.now(), opts)
}

// SweepExpired reminds both parties of active bets whose deadline has
// passed and raises one operator alert when any are found. It does not
// change bet status; settlement stays with the parties.
func (s *BetService) SweepExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.bets.ListExpired(ctx, s.now(), domain.ListOpts{Limit: limit})
	if err != nil {
		return 0, err
	}
	for _, bet := range expired {
		for _, userID := range []string{bet.CreatorID, bet.OpponentID} {
			if userID == "" {
				continue
			}
			s.addNotification(ctx, domain.Notification{
				UserID:       userID,
				Kind:         domain.NotifyBetStatus,
				Title:        "Bet deadline passed",
				Message:      fmt.Sprintf("%q reached its deadline; record the outcome", bet.Title),
				RelatedBetID: bet.ID,
			})
		}
	}
	if len(expired) > 0 {
		s.alert(ctx, notify.EventBetExpired, "Expired bets",
			fmt.Sprintf("%d active bets are past their deadline", len(expired)))
	}
	return len(expired), nil
}

// betEvent is the payload published to the WebSocket bus.
type betEvent struct {
	Type    string            `json:"type"`
	BetID   string            `json:"betId"`
	Status  domain.BetStatus  `json:"status"`
	Outcome domain.BetOutcome `json:"outcome,omitempty"`
	Title   string            `json:"title,omitempty"`
}

// publish fans a bet event out on the bet's own channel and, for public
// bets, the shared feed channel. Best-effort.
func (s *BetService) publish(ctx context.Context, bet domain.Bet, eventType string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(betEvent{
		Type:    eventType,
		BetID:   bet.ID,
		Status:  bet.Status,
		Outcome: bet.Outcome,
		Title:   bet.Title,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "ch:bet:"+bet.ID, payload); err != nil {
		s.logger.WarnContext(ctx, "publish failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	}
	if bet.Privacy == domain.PrivacyPublic {
		if err := s.bus.Publish(ctx, "ch:feed", payload); err != nil {
			s.logger.WarnContext(ctx, "feed publish failed",
				slog.String("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *BetService) invalidate(ctx context.Context, betID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, betID); err != nil {
		s.logger.WarnContext(ctx, "bet cache invalidate failed",
			slog.String("bet_id", betID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BetService) addNotification(ctx context.Context, n domain.Notification) {
	if s.notifs == nil {
		return
	}
	if err := s.notifs.Add(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification write failed",
			slog.String("user_id", n.UserID),
			slog.String("kind", n.Kind),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BetService) addActivity(ctx context.Context, a domain.Activity) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Add(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "activity write failed",
			slog.String("user_id", a.UserID),
			slog.String("kind", a.Kind),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BetService) alert(ctx context.Context, event, title, message string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "operator alert failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BetService) ensureStats(ctx context.Context, userIDs ...string) {
	if s.stats == nil {
		return
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := s.stats.Ensure(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "ensure stats failed",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}
