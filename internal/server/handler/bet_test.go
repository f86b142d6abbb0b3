package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/betpal/betpal/internal/domain"
	"github.com/betpal/betpal/internal/service"
)

// stubBetService records the last call made through the BetService interface
// and returns a canned bet or error.
type stubBetService struct {
	lastMethod   string
	lastBetID    string
	lastActor    string
	lastStatus   domain.BetStatus
	lastOutcome  domain.BetOutcome
	lastVote     domain.VoteChoice
	lastEvidence service.EvidenceInput
	lastComment  service.CommentInput
	lastQuery    string
	lastStatuses []domain.BetStatus
	lastCategory string
	lastCreate   service.CreateBetInput

	bet domain.Bet
	err error
}

func (s *stubBetService) Create(_ context.Context, in service.CreateBetInput) (domain.Bet, error) {
	s.lastMethod = "Create"
	s.lastActor = in.CreatorID
	s.lastCreate = in
	return s.bet, s.err
}

func (s *stubBetService) Get(_ context.Context, betID string) (domain.Bet, error) {
	s.lastMethod, s.lastBetID = "Get", betID
	return s.bet, s.err
}

func (s *stubBetService) ListByUser(_ context.Context, userID string, statuses []domain.BetStatus, category string, _ domain.ListOpts) ([]domain.Bet, error) {
	s.lastMethod, s.lastActor, s.lastStatuses, s.lastCategory = "ListByUser", userID, statuses, category
	return []domain.Bet{s.bet}, s.err
}

func (s *stubBetService) Search(_ context.Context, query string, _ domain.ListOpts) ([]domain.Bet, error) {
	s.lastMethod, s.lastQuery = "Search", query
	return []domain.Bet{s.bet}, s.err
}

func (s *stubBetService) ListExpired(_ context.Context, _ domain.ListOpts) ([]domain.Bet, error) {
	s.lastMethod = "ListExpired"
	return []domain.Bet{s.bet}, s.err
}

func (s *stubBetService) UpdateStatus(_ context.Context, betID, actorID string, newStatus domain.BetStatus) (domain.Bet, error) {
	s.lastMethod, s.lastBetID, s.lastActor, s.lastStatus = "UpdateStatus", betID, actorID, newStatus
	return s.bet, s.err
}

func (s *stubBetService) RecordOutcome(_ context.Context, betID, actorID string, outcome domain.BetOutcome) (domain.Bet, error) {
	s.lastMethod, s.lastBetID, s.lastActor, s.lastOutcome = "RecordOutcome", betID, actorID, outcome
	return s.bet, s.err
}

func (s *stubBetService) CastVote(_ context.Context, betID, voterID, _ string, choice domain.VoteChoice) (domain.Bet, error) {
	s.lastMethod, s.lastBetID, s.lastActor, s.lastVote = "CastVote", betID, voterID, choice
	return s.bet, s.err
}

func (s *stubBetService) AddEvidence(_ context.Context, betID string, in service.EvidenceInput) (domain.Bet, error) {
	s.lastMethod, s.lastBetID, s.lastEvidence = "AddEvidence", betID, in
	return s.bet, s.err
}

func (s *stubBetService) AddComment(_ context.Context, betID string, in service.CommentInput) (domain.Bet, error) {
	s.lastMethod, s.lastBetID, s.lastComment = "AddComment", betID, in
	return s.bet, s.err
}

func newTestBetHandler(svc BetService) *BetHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBetHandler(svc, nil, logger)
}

func patchBet(h *BetHandler, betID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/api/bets/"+betID, strings.NewReader(body))
	req.SetPathValue("id", betID)
	rec := httptest.NewRecorder()
	h.UpdateBet(rec, req)
	return rec
}

func TestUpdateBetDispatch(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantMethod string
		check      func(t *testing.T, svc *stubBetService)
	}{
		{
			name:       "status",
			body:       `{"type":"status","userId":"alice","status":"active"}`,
			wantMethod: "UpdateStatus",
			check: func(t *testing.T, svc *stubBetService) {
				if svc.lastStatus != domain.BetStatusActive {
					t.Errorf("status = %q, want active", svc.lastStatus)
				}
			},
		},
		{
			name:       "outcome",
			body:       `{"type":"outcome","userId":"alice","outcome":"win_creator"}`,
			wantMethod: "RecordOutcome",
			check: func(t *testing.T, svc *stubBetService) {
				if svc.lastOutcome != domain.OutcomeWinCreator {
					t.Errorf("outcome = %q, want win_creator", svc.lastOutcome)
				}
			},
		},
		{
			name:       "evidence",
			body:       `{"type":"evidence","userId":"alice","username":"Alice","evidence":{"evidenceType":"text","content":"she paid"}}`,
			wantMethod: "AddEvidence",
			check: func(t *testing.T, svc *stubBetService) {
				if svc.lastEvidence.Type != domain.EvidenceText || svc.lastEvidence.Content != "she paid" {
					t.Errorf("evidence = %+v", svc.lastEvidence)
				}
			},
		},
		{
			name:       "comment",
			body:       `{"type":"comment","userId":"alice","username":"Alice","comment":{"content":"nope","parentId":"c1"}}`,
			wantMethod: "AddComment",
			check: func(t *testing.T, svc *stubBetService) {
				if svc.lastComment.Content != "nope" || svc.lastComment.ParentID != "c1" {
					t.Errorf("comment = %+v", svc.lastComment)
				}
			},
		},
		{
			name:       "vote",
			body:       `{"type":"vote","userId":"carol","username":"Carol","vote":{"voteChoice":"creator_wins"}}`,
			wantMethod: "CastVote",
			check: func(t *testing.T, svc *stubBetService) {
				if svc.lastVote != domain.VoteCreatorWins {
					t.Errorf("vote = %q, want creator_wins", svc.lastVote)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubBetService{bet: domain.Bet{ID: "b1"}}
			h := newTestBetHandler(svc)

			rec := patchBet(h, "b1", tt.body)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			if svc.lastMethod != tt.wantMethod {
				t.Fatalf("dispatched %q, want %q", svc.lastMethod, tt.wantMethod)
			}
			if svc.lastBetID != "b1" {
				t.Errorf("betID = %q, want b1", svc.lastBetID)
			}
			if tt.check != nil {
				tt.check(t, svc)
			}
		})
	}
}

func TestUpdateBetRejectsBadEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing userId", `{"type":"status","status":"active"}`},
		{"unknown type", `{"type":"escalate","userId":"alice"}`},
		{"evidence without payload", `{"type":"evidence","userId":"alice"}`},
		{"comment without payload", `{"type":"comment","userId":"alice"}`},
		{"vote without payload", `{"type":"vote","userId":"alice"}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubBetService{}
			h := newTestBetHandler(svc)

			rec := patchBet(h, "b1", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if svc.lastMethod != "" {
				t.Errorf("service was called (%s), want no call", svc.lastMethod)
			}
		})
	}
}

func TestDomainErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrInvalidState, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &stubBetService{err: tt.err}
			h := newTestBetHandler(svc)

			rec := patchBet(h, "b1", `{"type":"status","userId":"alice","status":"active"}`)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateBetDeadlineFormats(t *testing.T) {
	svc := &stubBetService{bet: domain.Bet{ID: "b1"}}
	h := newTestBetHandler(svc)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.CreateBet(rec, req)
		return rec
	}

	if rec := post(`{"title":"t","creatorId":"alice","stake":"coffee","deadline":"2026-09-01T12:00:00Z"}`); rec.Code != http.StatusCreated {
		t.Errorf("RFC3339 deadline: status = %d, want 201", rec.Code)
	}
	if rec := post(`{"title":"t","creatorId":"alice","stake":"coffee","deadline":"2026-09-01"}`); rec.Code != http.StatusCreated {
		t.Errorf("bare date deadline: status = %d, want 201", rec.Code)
	}
	if rec := post(`{"title":"t","creatorId":"alice","stake":"coffee","deadline":"next tuesday"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad deadline: status = %d, want 400", rec.Code)
	}
}

func TestCreateBetPassesCategory(t *testing.T) {
	svc := &stubBetService{bet: domain.Bet{ID: "b1"}}
	h := newTestBetHandler(svc)

	body := `{"title":"t","creatorId":"alice","stake":"coffee","category":"fitness","deadline":"2026-09-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/bets", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateBet(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if svc.lastCreate.Category != "fitness" {
		t.Errorf("category = %q, want fitness", svc.lastCreate.Category)
	}
}

func TestListBetsDispatch(t *testing.T) {
	svc := &stubBetService{bet: domain.Bet{ID: "b1"}}
	h := newTestBetHandler(svc)

	get := func(rawQuery string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/bets?"+rawQuery, nil)
		rec := httptest.NewRecorder()
		h.ListBets(rec, req)
		return rec
	}

	if rec := get("q=pizza"); rec.Code != http.StatusOK || svc.lastMethod != "Search" || svc.lastQuery != "pizza" {
		t.Errorf("search: code=%d method=%s query=%s", rec.Code, svc.lastMethod, svc.lastQuery)
	}
	if rec := get("expired=true"); rec.Code != http.StatusOK || svc.lastMethod != "ListExpired" {
		t.Errorf("expired: code=%d method=%s", rec.Code, svc.lastMethod)
	}
	if rec := get("user_id=alice&status=active,disputed"); rec.Code != http.StatusOK || svc.lastMethod != "ListByUser" {
		t.Errorf("by user: code=%d method=%s", rec.Code, svc.lastMethod)
	}
	if len(svc.lastStatuses) != 2 || svc.lastStatuses[0] != domain.BetStatusActive || svc.lastStatuses[1] != domain.BetStatusDisputed {
		t.Errorf("statuses = %v, want [active disputed]", svc.lastStatuses)
	}
	if rec := get("user_id=alice&category=fitness"); rec.Code != http.StatusOK || svc.lastCategory != "fitness" {
		t.Errorf("category filter: code=%d category=%q, want fitness", rec.Code, svc.lastCategory)
	}

	var resp struct {
		Bets   []json.RawMessage `json:"bets"`
		Limit  int               `json:"limit"`
		Offset int               `json:"offset"`
	}
	rec := get("user_id=alice&limit=10&offset=20")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if resp.Limit != 10 || resp.Offset != 20 {
		t.Errorf("pagination echoed = %d/%d, want 10/20", resp.Limit, resp.Offset)
	}
}

func TestGetEvidenceObjectWithoutStorage(t *testing.T) {
	h := newTestBetHandler(&stubBetService{})

	req := httptest.NewRequest(http.MethodGet, "/api/bets/b1/evidence/k1", nil)
	req.SetPathValue("id", "b1")
	req.SetPathValue("key", "k1")
	rec := httptest.NewRecorder()
	h.GetEvidenceObject(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when blob storage disabled", rec.Code)
	}
}
