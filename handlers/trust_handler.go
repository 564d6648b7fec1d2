package handlers

import (
	"context"
	"net/http"
	"time"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"
)

type TrustHandler struct {
	trustService *services.TrustService
	log          *logger.Logger
}

func NewTrustHandler(trustService *services.TrustService, log *logger.Logger) *TrustHandler {
	return &TrustHandler{
		trustService: trustService,
		log:          log.With("handler", "trust"),
	}
}

// GET /api/v1/trust
func (h *TrustHandler) GetTrustSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	summary, err := h.trustService.GetTrustSummary(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, h.log, err, "Failed to load trust score")
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}
