package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/types/activity"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"
)

type ActivityHandler struct {
	activityService *services.ActivityService
	log             *logger.Logger
}

func NewActivityHandler(activityService *services.ActivityService, log *logger.Logger) *ActivityHandler {
	return &ActivityHandler{
		activityService: activityService,
		log:             log.With("handler", "activity"),
	}
}

// POST /api/v1/activities
func (h *ActivityHandler) LogActivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req activity.LogActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.activityService.LogActivity(ctx, clerkID, &req)
	if err != nil {
		respondWithServiceError(w, h.log, err, "Failed to log activity")
		return
	}

	respondWithJSON(w, http.StatusCreated, resp)
}
