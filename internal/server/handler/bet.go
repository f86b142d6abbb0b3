package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/betpal/betpal/internal/domain"
	"github.com/betpal/betpal/internal/service"
)

// BetService defines what the bet handler requires from the service layer.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type BetService interface {
	Create(ctx context.Context, in service.CreateBetInput) (domain.Bet, error)
	Get(ctx context.Context, betID string) (domain.Bet, error)
	ListByUser(ctx context.Context, userID string, statuses []domain.BetStatus, category string, opts domain.ListOpts) ([]domain.Bet, error)
	Search(ctx context.Context, query string, opts domain.ListOpts) ([]domain.Bet, error)
	ListExpired(ctx context.Context, opts domain.ListOpts) ([]domain.Bet, error)
	UpdateStatus(ctx context.Context, betID, actorID string, newStatus domain.BetStatus) (domain.Bet, error)
	RecordOutcome(ctx context.Context, betID, actorID string, outcome domain.BetOutcome) (domain.Bet, error)
	CastVote(ctx context.Context, betID, voterID, voterName string, choice domain.VoteChoice) (domain.Bet, error)
	AddEvidence(ctx context.Context, betID string, in service.EvidenceInput) (domain.Bet, error)
	AddComment(ctx context.Context, betID string, in service.CommentInput) (domain.Bet, error)
}

// BetHandler serves the bet endpoints.
type BetHandler struct {
	bets   BetService
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler. blobs may be nil when attachment
// serving is disabled.
func NewBetHandler(bets BetService, blobs domain.BlobReader, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, blobs: blobs, logger: logger}
}

// createBetRequest mirrors the JSON shape clients POST for a new bet.
type createBetRequest struct {
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Category      string                `json:"category"`
	CreatorID     string                `json:"creatorId"`
	CreatorName   string                `json:"creatorName"`
	OpponentID    string                `json:"opponentId"`
	OpponentName  string                `json:"opponentName"`
	Stake         string                `json:"stake"`
	IsMonetary    bool                  `json:"isMonetary"`
	MonetaryStake *domain.MonetaryStake `json:"monetaryStake"`
	Deadline      string                `json:"deadline"`
	Privacy       domain.BetPrivacy     `json:"privacy"`
}

// CreateBet creates a new bet in pending status.
// POST /api/bets
func (h *BetHandler) CreateBet(w http.ResponseWriter, r *http.Request) {
	var req createBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	deadline, err := parseTime(req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deadline")
		return
	}

	bet, err := h.bets.Create(r.Context(), service.CreateBetInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		CreatorID:     req.CreatorID,
		CreatorName:   req.CreatorName,
		OpponentID:    req.OpponentID,
		OpponentName:  req.OpponentName,
		Stake:         req.Stake,
		IsMonetary:    req.IsMonetary,
		MonetaryStake: req.MonetaryStake,
		Deadline:      deadline,
		Privacy:       req.Privacy,
	})
	if err != nil {
		h.logError(r, "create bet failed", err)
		writeDomainError(w, err, "failed to create bet")
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// ListBets lists bets for a user, searches public bets, or lists expired
// active bets.
// GET /api/bets?user_id=&status=&category=&q=&expired=&limit=&offset=
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	var (
		bets []domain.Bet
		err  error
	)
	switch {
	case q.Get("q") != "":
		bets, err = h.bets.Search(r.Context(), q.Get("q"), opts)
	case q.Get("expired") == "true":
		bets, err = h.bets.ListExpired(r.Context(), opts)
	default:
		var statuses []domain.BetStatus
		if s := q.Get("status"); s != "" {
			for _, part := range strings.Split(s, ",") {
				statuses = append(statuses, domain.BetStatus(strings.TrimSpace(part)))
			}
		}
		bets, err = h.bets.ListByUser(r.Context(), q.Get("user_id"), statuses, q.Get("category"), opts)
	}
	if err != nil {
		h.logError(r, "list bets failed", err)
		writeDomainError(w, err, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bets":   bets,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// GetBet returns a single bet with its full ledger.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	bet, err := h.bets.Get(r.Context(), id)
	if err != nil {
		h.logError(r, "get bet failed", err)
		writeDomainError(w, err, "failed to get bet")
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// updateBetRequest is the PATCH dispatch envelope. Type selects the
// operation; the matching optional field carries its payload.
type updateBetRequest struct {
	Type     string            `json:"type"`
	UserID   string            `json:"userId"`
	Username string            `json:"username"`
	Status   domain.BetStatus  `json:"status,omitempty"`
	Outcome  domain.BetOutcome `json:"outcome,omitempty"`
	Evidence *evidencePayload  `json:"evidence,omitempty"`
	Comment  *commentPayload   `json:"comment,omitempty"`
	Vote     *votePayload      `json:"vote,omitempty"`
}

type evidencePayload struct {
	Type    domain.EvidenceType `json:"evidenceType"`
	Content string              `json:"content"`
}

type commentPayload struct {
	Content  string `json:"content"`
	ParentID string `json:"parentId"`
}

type votePayload struct {
	Choice domain.VoteChoice `json:"voteChoice"`
}

// UpdateBet dispatches a bet mutation by its type field: status, outcome,
// evidence, comment or vote.
// PATCH /api/bets/{id}
func (h *BetHandler) UpdateBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req updateBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var (
		bet domain.Bet
		err error
	)
	switch req.Type {
	case "status":
		bet, err = h.bets.UpdateStatus(r.Context(), id, req.UserID, req.Status)
	case "outcome":
		bet, err = h.bets.RecordOutcome(r.Context(), id, req.UserID, req.Outcome)
	case "evidence":
		if req.Evidence == nil {
			writeError(w, http.StatusBadRequest, "evidence payload is required")
			return
		}
		bet, err = h.bets.AddEvidence(r.Context(), id, service.EvidenceInput{
			UserID:   req.UserID,
			Username: req.Username,
			Type:     req.Evidence.Type,
			Content:  req.Evidence.Content,
		})
	case "comment":
		if req.Comment == nil {
			writeError(w, http.StatusBadRequest, "comment payload is required")
			return
		}
		bet, err = h.bets.AddComment(r.Context(), id, service.CommentInput{
			UserID:   req.UserID,
			Username: req.Username,
			Content:  req.Comment.Content,
			ParentID: req.Comment.ParentID,
		})
	case "vote":
		if req.Vote == nil {
			writeError(w, http.StatusBadRequest, "vote payload is required")
			return
		}
		bet, err = h.bets.CastVote(r.Context(), id, req.UserID, req.Username, req.Vote.Choice)
	default:
		writeError(w, http.StatusBadRequest, "unknown update type")
		return
	}
	if err != nil {
		h.logError(r, "update bet failed", err)
		writeDomainError(w, err, "failed to update bet")
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// maxAttachmentMemory caps the multipart form buffer; larger file parts
// spill to disk.
const maxAttachmentMemory = 16 << 20

// UploadEvidence accepts a multipart evidence submission with a file
// attachment (image or video) that is offloaded to blob storage.
// POST /api/bets/{id}/evidence
func (h *BetHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if err := r.ParseMultipartForm(maxAttachmentMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	bet, err := h.bets.AddEvidence(r.Context(), id, service.EvidenceInput{
		UserID:         r.FormValue("userId"),
		Username:       r.FormValue("username"),
		Type:           domain.EvidenceType(r.FormValue("evidenceType")),
		Attachment:     file,
		AttachmentSize: header.Size,
		ContentType:    header.Header.Get("Content-Type"),
	})
	if err != nil {
		h.logError(r, "upload evidence failed", err)
		writeDomainError(w, err, "failed to upload evidence")
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// GetEvidenceObject streams a stored evidence attachment.
// GET /api/bets/{id}/evidence/{key}
func (h *BetHandler) GetEvidenceObject(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotFound, "attachment storage is not configured")
		return
	}
	id := pathParam(r, "id")
	key := pathParam(r, "key")
	if id == "" || key == "" {
		writeError(w, http.StatusBadRequest, "missing attachment key")
		return
	}

	body, err := h.blobs.Get(r.Context(), "evidence/"+id+"/"+key)
	if err != nil {
		h.logError(r, "get attachment failed", err)
		writeDomainError(w, err, "failed to get attachment")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logError(r, "stream attachment failed", err)
	}
}

func (h *BetHandler) logError(r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
