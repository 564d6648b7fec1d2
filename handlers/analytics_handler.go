package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"
)

type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	log              *logger.Logger
}

func NewAnalyticsHandler(analyticsService *services.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		log:              log.With("handler", "analytics"),
	}
}

// GET /api/v1/analytics/summaries?days=
func (h *AnalyticsHandler) GetDailySummaries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondWithError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	summaries, err := h.analyticsService.GetDailySummaries(ctx, clerkID, days)
	if err != nil {
		respondWithServiceError(w, h.log, err, "Failed to load summaries")
		return
	}

	respondWithJSON(w, http.StatusOK, summaries)
}
