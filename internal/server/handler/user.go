package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/betpal/betpal/internal/domain"
)

// StatsService defines what the user handler requires for aggregates.
type StatsService interface {
	Get(ctx context.Context, userID string) (domain.UserStats, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.UserStats, error)
}

// UserHandler serves per-user stats, notification inbox and activity feed
// endpoints.
type UserHandler struct {
	stats    StatsService
	notifs   domain.NotificationStore
	activity domain.ActivityStore
	logger   *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(stats StatsService, notifs domain.NotificationStore, activity domain.ActivityStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{stats: stats, notifs: notifs, activity: activity, logger: logger}
}

// GetStats returns a user's win/loss aggregates.
// GET /api/users/{id}/stats
func (h *UserHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	stats, err := h.stats.Get(r.Context(), id)
	if err != nil {
		h.logError(r, "get stats failed", err)
		writeDomainError(w, err, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Leaderboard returns the top users by win rate.
// GET /api/leaderboard?limit=20
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	top, err := h.stats.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logError(r, "leaderboard failed", err)
		writeDomainError(w, err, "failed to load leaderboard")
		return
	}
	if top == nil {
		top = []domain.UserStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": top})
}

// ListNotifications returns a user's notification inbox, newest first.
// GET /api/users/{id}/notifications
func (h *UserHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	notifs, err := h.notifs.ListByUser(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logError(r, "list notifications failed", err)
		writeDomainError(w, err, "failed to list notifications")
		return
	}
	if notifs == nil {
		notifs = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifs})
}

// MarkNotificationRead marks one notification as read.
// POST /api/users/{id}/notifications/{nid}/read
func (h *UserHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	nid, err := strconv.ParseInt(pathParam(r, "nid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := h.notifs.MarkRead(r.Context(), id, nid); err != nil {
		h.logError(r, "mark notification read failed", err)
		writeDomainError(w, err, "failed to mark notification read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListActivity returns a user's own activity feed.
// GET /api/users/{id}/activity
func (h *UserHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	entries, err := h.activity.ListByUser(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logError(r, "list activity failed", err)
		writeDomainError(w, err, "failed to list activity")
		return
	}
	if entries == nil {
		entries = []domain.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

// PublicFeed returns recent public activity entries.
// GET /api/feed
func (h *UserHandler) PublicFeed(w http.ResponseWriter, r *http.Request) {
	entries, err := h.activity.ListPublic(r.Context(), parseListOpts(r))
	if err != nil {
		h.logError(r, "public feed failed", err)
		writeDomainError(w, err, "failed to load feed")
		return
	}
	if entries == nil {
		entries = []domain.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

func (h *UserHandler) logError(r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), "handler: "+msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
