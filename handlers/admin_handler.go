package handlers

import (
	"context"
	"net/http"
	"time"

	"focusforgeAPI/internal/badge"
	"focusforgeAPI/internal/logger"
)

// BadgeBackfiller re-evaluates badges for every user.
type BadgeBackfiller interface {
	Backfill(ctx context.Context) (*badge.BackfillReport, error)
}

// LeaderboardRecomputer rebuilds every snapshot scope.
type LeaderboardRecomputer interface {
	RecomputeAll(ctx context.Context) error
}

// AdminHandler serves operator jobs. Routes are mounted behind basic auth.
type AdminHandler struct {
	badges      BadgeBackfiller
	leaderboard LeaderboardRecomputer
	timeout     time.Duration
	log         *logger.Logger
}

func NewAdminHandler(badges BadgeBackfiller, leaderboard LeaderboardRecomputer, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		badges:      badges,
		leaderboard: leaderboard,
		timeout:     5 * time.Minute,
		log:         log.With("handler", "admin"),
	}
}

// POST /api/v1/admin/badges/backfill
func (h *AdminHandler) BackfillBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	report, err := h.badges.Backfill(ctx)
	if err != nil {
		respondWithServiceError(w, h.log, err, "Badge backfill failed")
		return
	}
	h.log.Info("badge backfill finished",
		"users", report.UsersProcessed,
		"awarded", report.BadgesAwarded,
		"failed", report.UsersFailed,
		"took", time.Since(start))

	respondWithJSON(w, http.StatusOK, report)
}

// POST /api/v1/admin/leaderboard/recompute
func (h *AdminHandler) RecomputeLeaderboards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	if err := h.leaderboard.RecomputeAll(ctx); err != nil {
		respondWithServiceError(w, h.log, err, "Leaderboard recompute failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
