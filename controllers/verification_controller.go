package controllers

import (
	"encoding/json"
	"net/http"

	"kindling_server/services"
)

// VerificationController handles HTTP requests for meetup verification.
type VerificationController struct {
	Verification *services.VerificationService
}

// NewVerificationController creates a new VerificationController instance.
func NewVerificationController(verification *services.VerificationService) *VerificationController {
	return &VerificationController{Verification: verification}
}

// HandleIssueToken mints a short-lived QR payload for the issuing user.
func (vc *VerificationController) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID string `json:"matchId"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MatchID == "" || request.UserID == "" {
		http.Error(w, "matchId and userId are required", http.StatusBadRequest)
		return
	}

	payload, token, err := vc.Verification.IssueToken(r.Context(), request.MatchID, request.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"payload":   payload,
		"expiresAt": token.ExpiresAt,
	})
}

// HandleConfirm consumes a scanned QR payload and unlocks the match's credit.
func (vc *VerificationController) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID string `json:"matchId"`
		UserID  string `json:"userId"`
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MatchID == "" || request.UserID == "" || request.Payload == "" {
		http.Error(w, "matchId, userId and payload are required", http.StatusBadRequest)
		return
	}

	result, err := vc.Verification.Confirm(r.Context(), request.MatchID, request.UserID, request.Payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleTapStart registers the caller's side of the mutual-tap handshake.
func (vc *VerificationController) HandleTapStart(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID string `json:"matchId"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MatchID == "" || request.UserID == "" {
		http.Error(w, "matchId and userId are required", http.StatusBadRequest)
		return
	}

	result, err := vc.Verification.StartHandshake(r.Context(), request.MatchID, request.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleTapStatus reports the handshake state without mutating it.
func (vc *VerificationController) HandleTapStatus(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("matchId")
	userID := r.URL.Query().Get("userId")
	if matchID == "" || userID == "" {
		http.Error(w, "matchId and userId are required", http.StatusBadRequest)
		return
	}

	result, err := vc.Verification.HandshakeStatus(r.Context(), matchID, userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
