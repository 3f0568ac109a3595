package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// InternalErrorMessage is the only detail clients see for server faults.
const InternalErrorMessage = "Internal server error"

// RespondJSON writes payload as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondInternalError logs err and answers 500 with a generic body.
func RespondInternalError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if logger == nil {
		logger = zap.L()
	}
	logger.Error("request failed", zap.Error(err))
	RespondError(w, http.StatusInternalServerError, InternalErrorMessage)
}
