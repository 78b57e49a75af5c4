package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"kindling_server/services"
)

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// respondError maps a service error to an HTTP status and a stable error code
// clients can branch on. Anything unmapped is a storage failure.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	switch {
	case errors.Is(err, services.ErrInvalidRange):
		status, code = http.StatusBadRequest, "INVALID_RANGE"
	case errors.Is(err, services.ErrMissingField):
		status, code = http.StatusBadRequest, "MISSING_FIELD"
	case errors.Is(err, services.ErrNotProposer):
		status, code = http.StatusBadRequest, "NOT_PROPOSER"
	case errors.Is(err, services.ErrNoActiveProposal):
		status, code = http.StatusBadRequest, "NO_ACTIVE_PROPOSAL"
	case errors.Is(err, services.ErrTokenMismatch):
		status, code = http.StatusBadRequest, "TOKEN_MISMATCH"
	case errors.Is(err, services.ErrInvalidReason):
		status, code = http.StatusBadRequest, "INVALID_REASON"
	case errors.Is(err, services.ErrNotParticipant):
		status, code = http.StatusForbidden, "NOT_PARTICIPANT"
	case errors.Is(err, services.ErrMatchNotFound):
		status, code = http.StatusNotFound, "MATCH_NOT_FOUND"
	case errors.Is(err, services.ErrNoConversation):
		status, code = http.StatusNotFound, "NO_CONVERSATION"
	case errors.Is(err, services.ErrUnknownUser):
		status, code = http.StatusNotFound, "UNKNOWN_USER"
	case errors.Is(err, services.ErrPlanAccepted):
		status, code = http.StatusConflict, "PLAN_ACCEPTED"
	case errors.Is(err, services.ErrConversationNotActive):
		status, code = http.StatusConflict, "CONVERSATION_NOT_ACTIVE"
	case errors.Is(err, services.ErrConversationEnded):
		status, code = http.StatusGone, "CONVERSATION_ENDED"
	case errors.Is(err, services.ErrTokenExpired):
		status, code = http.StatusGone, "TOKEN_EXPIRED"
	}

	respondJSON(w, status, map[string]interface{}{
		"error": code,
		"message": err.Error(),
	})
}
