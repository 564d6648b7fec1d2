package handlers

import (
	"context"
	"net/http"
	"time"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"
)

type BadgeHandler struct {
	badgeService *services.BadgeService
	log          *logger.Logger
}

func NewBadgeHandler(badgeService *services.BadgeService, log *logger.Logger) *BadgeHandler {
	return &BadgeHandler{
		badgeService: badgeService,
		log:          log.With("handler", "badge"),
	}
}

// GET /api/v1/badges
func (h *BadgeHandler) ListBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	defs, err := h.badgeService.ListDefinitions(ctx)
	if err != nil {
		respondWithServiceError(w, h.log, err, "Failed to load badges")
		return
	}

	respondWithJSON(w, http.StatusOK, defs)
}

// GET /api/v1/badges/me
func (h *BadgeHandler) ListMyBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	badges, err := h.badgeService.ListUserBadges(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.log, err, "Failed to load badges")
		return
	}

	respondWithJSON(w, http.StatusOK, badges)
}
