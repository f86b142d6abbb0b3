package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/betpal/betpal/internal/domain"
)

type betServiceFixture struct {
	svc    *BetService
	bets   *fakeBetStore
	stats  *fakeStatsStore
	notifs *fakeNotifStore
	feed   *fakeActivityStore
	blobs  *fakeBlobWriter
	locks  *fakeLocks
}

func newBetServiceFixture(t *testing.T) *betServiceFixture {
	t.Helper()
	bets := newFakeBetStore()
	stats := newFakeStatsStore()
	notifs := &fakeNotifStore{}
	feed := &fakeActivityStore{}
	blobs := newFakeBlobWriter()
	locks := newFakeLocks()
	logger := testLogger()

	svc := NewBetService(BetServiceDeps{
		Bets:          bets,
		Stats:         NewStatsService(stats, locks, logger),
		Notifications: notifs,
		Activity:      feed,
		Locks:         locks,
		Blobs:         blobs,
		Logger:        logger,
	})
	return &betServiceFixture{svc: svc, bets: bets, stats: stats, notifs: notifs, feed: feed, blobs: blobs, locks: locks}
}

func (fx *betServiceFixture) seed(t *testing.T, status domain.BetStatus) domain.Bet {
	t.Helper()
	bet, err := fx.svc.Create(context.Background(), CreateBetInput{
		Title:        "First to 10k steps",
		CreatorID:    "alice",
		CreatorName:  "Alice",
		OpponentID:   "bob",
		OpponentName: "Bob",
		Stake:        "a coffee",
		Deadline:     time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status != domain.BetStatusPending {
		fx.bets.mu.Lock()
		b := fx.bets.bets[bet.ID]
		b.Status = status
		fx.bets.bets[bet.ID] = b
		fx.bets.mu.Unlock()
		bet.Status = status
	}
	return bet
}

func TestCreateStartsPending(t *testing.T) {
	fx := newBetServiceFixture(t)

	bet := fx.seed(t, domain.BetStatusPending)

	if bet.Status != domain.BetStatusPending {
		t.Fatalf("status = %s, want pending", bet.Status)
	}
	if len(bet.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(bet.Participants))
	}
	if got := fx.notifs.byKind("bob", domain.NotifyBetRequest); len(got) != 1 {
		t.Fatalf("opponent bet_request notifications = %d, want 1", len(got))
	}
	if _, err := fx.stats.Get(context.Background(), "alice"); err != nil {
		t.Fatalf("creator stats row not ensured: %v", err)
	}
}

func TestListByUserCategoryFilter(t *testing.T) {
	fx := newBetServiceFixture(t)
	ctx := context.Background()

	mk := func(title, category string) domain.Bet {
		bet, err := fx.svc.Create(ctx, CreateBetInput{
			Title:     title,
			Category:  category,
			CreatorID: "alice",
			Stake:     "a coffee",
			Deadline:  time.Now().Add(24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
		return bet
	}
	fitness := mk("First to 10k steps", "fitness")
	mk("Who wins the quiz", "trivia")

	if fitness.Category != "fitness" {
		t.Fatalf("category = %q, want fitness", fitness.Category)
	}

	got, err := fx.svc.ListByUser(ctx, "alice", nil, "fitness", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 1 || got[0].ID != fitness.ID {
		t.Fatalf("got %d bets, want only the fitness bet", len(got))
	}

	all, err := fx.svc.ListByUser(ctx, "alice", nil, "", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered list = %d bets, want 2", len(all))
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	fx := newBetServiceFixture(t)

	cases := []struct {
		name string
		in   CreateBetInput
	}{
		{"missing title", CreateBetInput{CreatorID: "alice", Stake: "x", Deadline: time.Now().Add(time.Hour)}},
		{"missing stake", CreateBetInput{Title: "t", CreatorID: "alice", Deadline: time.Now().Add(time.Hour)}},
		{"zero deadline", CreateBetInput{Title: "t", CreatorID: "alice", Stake: "x"}},
		{"monetary without stake detail", CreateBetInput{Title: "t", CreatorID: "alice", Stake: "x", IsMonetary: true, Deadline: time.Now().Add(time.Hour)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fx.svc.Create(context.Background(), tc.in); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestUpdateStatusRequiresParty(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusPending)

	_, err := fx.svc.UpdateStatus(context.Background(), bet.ID, "mallory", domain.BetStatusActive)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    domain.BetStatus
		to      domain.BetStatus
		wantErr error
	}{
		{"pending to active", domain.BetStatusPending, domain.BetStatusActive, nil},
		{"pending to canceled", domain.BetStatusPending, domain.BetStatusCanceled, nil},
		{"active to disputed", domain.BetStatusActive, domain.BetStatusDisputed, nil},
		{"pending to disputed", domain.BetStatusPending, domain.BetStatusDisputed, domain.ErrInvalidTransition},
		{"canceled is terminal", domain.BetStatusCanceled, domain.BetStatusActive, domain.ErrInvalidTransition},
		{"completed unreachable here", domain.BetStatusActive, domain.BetStatusCompleted, domain.ErrInvalidArgument},
		{"unknown status", domain.BetStatusPending, domain.BetStatus("revoked"), domain.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newBetServiceFixture(t)
			bet := fx.seed(t, tc.from)

			got, err := fx.svc.UpdateStatus(context.Background(), bet.ID, "bob", tc.to)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			if got.Status != tc.to {
				t.Fatalf("status = %s, want %s", got.Status, tc.to)
			}
			// The counterpart learns about the change.
			if n := fx.notifs.byKind("alice", domain.NotifyBetStatus); len(n) != 1 {
				t.Fatalf("counterpart notifications = %d, want 1", len(n))
			}
		})
	}
}

func TestRecordOutcomeSettlesBet(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	got, err := fx.svc.RecordOutcome(context.Background(), bet.ID, "alice", domain.OutcomeWinCreator)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if got.Status != domain.BetStatusCompleted || got.Outcome != domain.OutcomeWinCreator {
		t.Fatalf("got status=%s outcome=%s", got.Status, got.Outcome)
	}

	stats, err := fx.stats.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Wins != 1 || stats.CurrentStreak != 1 {
		t.Fatalf("creator stats = %+v, want 1 win, streak 1", stats)
	}
	if n := fx.notifs.byKind("alice", domain.NotifyWin); len(n) != 1 {
		t.Fatalf("winner notifications = %d, want 1", len(n))
	}
	if n := fx.notifs.byKind("bob", domain.NotifyLoss); len(n) != 1 {
		t.Fatalf("loser notifications = %d, want 1", len(n))
	}
}

func TestRecordOutcomeRejectsPending(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusPending)

	_, err := fx.svc.RecordOutcome(context.Background(), bet.ID, "alice", domain.OutcomeDraw)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestRecordOutcomeAtMostOnce(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	if _, err := fx.svc.RecordOutcome(context.Background(), bet.ID, "alice", domain.OutcomeWinCreator); err != nil {
		t.Fatalf("first RecordOutcome: %v", err)
	}
	_, err := fx.svc.RecordOutcome(context.Background(), bet.ID, "bob", domain.OutcomeWinOpponent)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second settlement err = %v, want ErrInvalidState", err)
	}

	stored, _ := fx.bets.GetByID(context.Background(), bet.ID)
	if stored.Outcome != domain.OutcomeWinCreator {
		t.Fatalf("outcome = %s, first settlement must stand", stored.Outcome)
	}
}

func TestRecordOutcomeWaitsForBetLock(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	unlock, err := fx.locks.Acquire(context.Background(), "bet:"+bet.ID, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = fx.svc.RecordOutcome(context.Background(), bet.ID, "alice", domain.OutcomeWinCreator)
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld while a ledger write holds the bet", err)
	}
	stored, _ := fx.bets.GetByID(context.Background(), bet.ID)
	if stored.Status != domain.BetStatusActive {
		t.Fatalf("status = %s, settlement must not proceed under a held lock", stored.Status)
	}

	unlock()
	if _, err := fx.svc.RecordOutcome(context.Background(), bet.ID, "alice", domain.OutcomeWinCreator); err != nil {
		t.Fatalf("RecordOutcome after release: %v", err)
	}
}

func TestRecordOutcomeVoidedSkipsStats(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	if _, err := fx.svc.RecordOutcome(context.Background(), bet.ID, "alice", domain.OutcomeVoided); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}

	stats, err := fx.stats.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBets != 0 {
		t.Fatalf("voided outcome applied deltas: %+v", stats)
	}
	if n := fx.notifs.byKind("alice", domain.NotifyWin); len(n) != 0 {
		t.Fatalf("voided outcome produced win notifications")
	}
}

func TestCastVoteRequiresDisputed(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	_, err := fx.svc.CastVote(context.Background(), bet.ID, "carol", "Carol", domain.VoteCreatorWins)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestCastVoteAutoResolves(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusDisputed)

	for _, voter := range []string{"carol", "dave"} {
		got, err := fx.svc.CastVote(context.Background(), bet.ID, voter, voter, domain.VoteCreatorWins)
		if err != nil {
			t.Fatalf("CastVote(%s): %v", voter, err)
		}
		if got.Status != domain.BetStatusDisputed {
			t.Fatalf("resolved after %s with only %d votes", voter, len(got.Votes))
		}
	}

	got, err := fx.svc.CastVote(context.Background(), bet.ID, "erin", "Erin", domain.VoteCreatorWins)
	if err != nil {
		t.Fatalf("CastVote(erin): %v", err)
	}
	if got.Status != domain.BetStatusCompleted || got.Outcome != domain.OutcomeWinCreator {
		t.Fatalf("got status=%s outcome=%s, want completed/win_creator", got.Status, got.Outcome)
	}
	for _, userID := range []string{"alice", "bob"} {
		if n := fx.notifs.byKind(userID, domain.NotifyDisputeResolved); len(n) != 1 {
			t.Fatalf("dispute_resolved notifications for %s = %d, want 1", userID, len(n))
		}
	}
}

func TestCastVoteExactThresholdStaysDisputed(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusDisputed)

	// 3 of 4 votes is exactly 75%, not strictly above it.
	votes := map[string]domain.VoteChoice{
		"carol": domain.VoteCreatorWins,
		"dave":  domain.VoteCreatorWins,
		"erin":  domain.VoteCreatorWins,
		"frank": domain.VoteDraw,
	}
	// Seed the fourth vote before the third agreeing one so the tally never
	// passes through a resolving state.
	order := []string{"carol", "dave", "frank", "erin"}
	var got domain.Bet
	var err error
	for _, voter := range order {
		got, err = fx.svc.CastVote(context.Background(), bet.ID, voter, voter, votes[voter])
		if err != nil {
			t.Fatalf("CastVote(%s): %v", voter, err)
		}
	}
	if got.Status != domain.BetStatusDisputed {
		t.Fatalf("status = %s, want disputed at exactly 75%%", got.Status)
	}
}

func TestCastVoteRevoteReplacesBallot(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusDisputed)

	if _, err := fx.svc.CastVote(context.Background(), bet.ID, "carol", "Carol", domain.VoteCreatorWins); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	got, err := fx.svc.CastVote(context.Background(), bet.ID, "carol", "Carol", domain.VoteDraw)
	if err != nil {
		t.Fatalf("revote: %v", err)
	}
	if len(got.Votes) != 1 {
		t.Fatalf("votes = %d, want 1 after revote", len(got.Votes))
	}
	if got.Votes[0].Choice != domain.VoteDraw {
		t.Fatalf("choice = %s, want draw", got.Votes[0].Choice)
	}
}

func TestAddEvidenceOffloadsAttachment(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	got, err := fx.svc.AddEvidence(context.Background(), bet.ID, EvidenceInput{
		UserID:         "alice",
		Username:       "Alice",
		Type:           domain.EvidenceImage,
		Attachment:     strings.NewReader("png bytes"),
		AttachmentSize: 9,
		ContentType:    "image/png",
	})
	if err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}
	if len(got.Evidence) != 1 {
		t.Fatalf("evidence = %d, want 1", len(got.Evidence))
	}
	key := got.Evidence[0].Content
	if !strings.HasPrefix(key, "evidence/"+bet.ID+"/") {
		t.Fatalf("content = %q, want blob key under evidence/%s/", key, bet.ID)
	}
	if _, ok := fx.blobs.objs[key]; !ok {
		t.Fatalf("attachment %q not uploaded", key)
	}
	if n := fx.notifs.byKind("bob", domain.NotifyEvidence); len(n) != 1 {
		t.Fatalf("counterpart evidence notifications = %d, want 1", len(n))
	}
}

func TestAddEvidenceRejectsUnknownType(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	_, err := fx.svc.AddEvidence(context.Background(), bet.ID, EvidenceInput{
		UserID:  "alice",
		Type:    domain.EvidenceType("hologram"),
		Content: "x",
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestAddCommentThreading(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	got, err := fx.svc.AddComment(context.Background(), bet.ID, CommentInput{
		UserID: "alice", Username: "Alice", Content: "I already hit 8k today",
	})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	reply, err := fx.svc.AddComment(context.Background(), bet.ID, CommentInput{
		UserID: "bob", Username: "Bob", Content: "screenshots or it didn't happen",
		ParentID: got.Comments[0].ID,
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if len(reply.Comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(reply.Comments))
	}

	_, err = fx.svc.AddComment(context.Background(), bet.ID, CommentInput{
		UserID: "bob", Username: "Bob", Content: "dangling", ParentID: "no-such-comment",
	})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("dangling parent err = %v, want ErrInvalidArgument", err)
	}
}

func TestGetUnknownBet(t *testing.T) {
	fx := newBetServiceFixture(t)

	_, err := fx.svc.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSweepExpiredNotifiesParties(t *testing.T) {
	fx := newBetServiceFixture(t)
	bet := fx.seed(t, domain.BetStatusActive)

	fx.bets.mu.Lock()
	b := fx.bets.bets[bet.ID]
	b.Deadline = time.Now().Add(-time.Hour)
	fx.bets.bets[bet.ID] = b
	fx.bets.mu.Unlock()

	n, err := fx.svc.SweepExpired(context.Background(), 10)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	for _, userID := range []string{"alice", "bob"} {
		if got := fx.notifs.byKind(userID, domain.NotifyBetStatus); len(got) != 1 {
			t.Fatalf("deadline notifications for %s = %d, want 1", userID, len(got))
		}
	}
}
