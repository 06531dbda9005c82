package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/scenariolab/foresight/pkg/anthropic"
)

// API error codes returned in error payloads. The generation-failure codes
// are the wire vocabulary clients key their messaging on; with the resilient
// predictor in front of the generation call, the interactive endpoint itself
// only produces codeNoContent and codeServiceError.
const (
	codeQuotaExceeded = "QUOTA_EXCEEDED"
	codeAuthFailed    = "AUTH_FAILED"
	codeNetworkError  = "NETWORK_ERROR"
	codeNoContent     = "NO_CONTENT"
	codeServiceError  = "SERVICE_ERROR"
)

// CodeForKind maps a generation failure kind to its API error code. It is
// the contract definition for API clients: handlers in this package cannot
// reach the generation-kind codes because the predictor converts those
// failures into fallback results before they surface.
func CodeForKind(kind anthropic.ErrorKind) string {
	switch kind {
	case anthropic.ErrTimedOut, anthropic.ErrRateLimited:
		return codeQuotaExceeded
	case anthropic.ErrAuthFailed:
		return codeAuthFailed
	case anthropic.ErrNetworkError:
		return codeNetworkError
	default:
		return codeServiceError
	}
}

// apiError is the JSON error payload.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, apiError{Message: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}
