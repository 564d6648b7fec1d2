package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"focusforgeAPI/internal/apperr"
	"focusforgeAPI/internal/logger"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAntiCheat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes the client-facing form of err. Internal
// failures are logged and replaced by fallback.
func respondWithServiceError(w http.ResponseWriter, log *logger.Logger, err error, fallback string) {
	code := statusFor(err)
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		respondWithError(w, code, apperr.Message(err))
	case http.StatusNotFound, http.StatusTooManyRequests:
		respondWithError(w, code, err.Error())
	default:
		log.Error(fallback, "error", err)
		respondWithError(w, code, fallback)
	}
}
