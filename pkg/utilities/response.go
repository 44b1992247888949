package utilities

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/chain"
)

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes {"error": msg}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteError maps err onto a response. Reverts keep their reason as the
// message; anything else is logged and reported as an internal error.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	reason := chain.Reason(err)
	if reason == "" {
		logger.Errorw("request failed", "err", err)
		WriteMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	WriteMessage(w, StatusForReason(reason), reason)
}

// StatusForReason picks the HTTP status for a revert reason.
func StatusForReason(reason string) int {
	switch {
	case strings.HasPrefix(reason, "NotOwner"),
		strings.HasPrefix(reason, "NotAuthorized"),
		reason == "NotAttestationOwner":
		return http.StatusForbidden
	case strings.HasSuffix(reason, "NotFound"), reason == "NotRegistered":
		return http.StatusNotFound
	case reason == "ReentrancyGuardReentrantCall":
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
