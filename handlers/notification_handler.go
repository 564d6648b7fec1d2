package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"focusforgeAPI/internal/logger"
	"focusforgeAPI/internal/types/notification"
	"focusforgeAPI/middleware"
	"focusforgeAPI/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
	log                 *logger.Logger
}

func NewNotificationHandler(notificationService *services.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		log:                 log.With("handler", "notification"),
	}
}

// POST /api/v1/notifications/register-device
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req notification.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.notificationService.RegisterDevice(ctx, clerkID, &req); err != nil {
		respondWithServiceError(w, h.log, err, "Failed to register device")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}
