package handlers

import (
	"context"
	"net/http"
	"time"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"
)

type LeaderboardHandler struct {
	leaderboardService *services.LeaderboardService
	log                *logger.Logger
}

func NewLeaderboardHandler(leaderboardService *services.LeaderboardService, log *logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
		log:                log.With("handler", "leaderboard"),
	}
}

// GET /api/v1/leaderboard?category=&period=
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	board, err := h.leaderboardService.GetLeaderboard(ctx, q.Get("category"), q.Get("period"))
	if err != nil {
		respondWithServiceError(w, h.log, err, "Failed to load leaderboard")
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

// GET /api/v1/leaderboard/me?category=&period=
func (h *LeaderboardHandler) GetMyRank(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	q := r.URL.Query()
	rc, err := h.leaderboardService.GetUserRankContext(ctx, clerkID, q.Get("category"), q.Get("period"))
	if err != nil {
		respondWithServiceError(w, h.log, err, "Failed to load rank")
		return
	}

	respondWithJSON(w, http.StatusOK, rc)
}

// GET /api/v1/leaderboard/categories
func (h *LeaderboardHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.leaderboardService.Categories(),
		"periods":    []string{"WEEKLY", "MONTHLY", "ALL_TIME"},
	})
}
