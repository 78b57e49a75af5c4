package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"kindling_server/services"
)

// ConversationController handles HTTP requests for matches and conversations.
type ConversationController struct {
	Conversations *services.ConversationService
	Sweeper       *services.SweeperService
}

// NewConversationController creates a new ConversationController instance.
func NewConversationController(conversations *services.ConversationService, sweeper *services.SweeperService) *ConversationController {
	return &ConversationController{Conversations: conversations, Sweeper: sweeper}
}

// HandleCreateMatch registers a mutual match between two users.
func (cc *ConversationController) HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID string `json:"matchId"`
		User1ID string `json:"user1Id"`
		User2ID string `json:"user2Id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.User1ID == "" || request.User2ID == "" || request.User1ID == request.User2ID {
		http.Error(w, "user1Id and user2Id must be two distinct users", http.StatusBadRequest)
		return
	}

	match, err := cc.Conversations.CreateMatch(r.Context(), request.MatchID, request.User1ID, request.User2ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"match": match})
}

// HandleSendMessage stores a message; the first real message starts the
// conversation and counts as the sender's consent.
func (cc *ConversationController) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID  string `json:"matchId"`
		SenderID string `json:"senderId"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MatchID == "" || request.SenderID == "" || request.Content == "" {
		http.Error(w, "matchId, senderId and content are required", http.StatusBadRequest)
		return
	}

	message, err := cc.Conversations.RecordMessage(r.Context(), request.MatchID, request.SenderID, request.Content, false)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": message})
}

// HandleConsent records an explicit opt-in to the conversation.
func (cc *ConversationController) HandleConsent(w http.ResponseWriter, r *http.Request) {
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

	conversation, err := cc.Conversations.RecordConsent(r.Context(), request.MatchID, request.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversation": conversation})
}

// HandleList returns the user's conversation listing. Stored state is advanced
// first, so the listing never shows a stale countdown as live.
func (cc *ConversationController) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	if err := cc.Sweeper.SweepUser(r.Context(), userID); err != nil {
		log.Printf("⚠️ Pre-listing sweep failed for %s: %v", userID, err)
	}

	summaries, err := cc.Conversations.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": summaries})
}

// HandleArchive hides a match from the caller's listing without touching the
// shared conversation state.
func (cc *ConversationController) HandleArchive(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID string `json:"matchId"`
		UserID  string `json:"userId"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MatchID == "" || request.UserID == "" {
		http.Error(w, "matchId and userId are required", http.StatusBadRequest)
		return
	}

	if err := cc.Conversations.Archive(r.Context(), request.UserID, request.MatchID, request.Reason); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "Match archived"})
}

// HandleClose ends the conversation for both participants.
func (cc *ConversationController) HandleClose(w http.ResponseWriter, r *http.Request) {
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

	if err := cc.Conversations.Close(r.Context(), request.MatchID, request.UserID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "Conversation closed"})
}
