package controllers

import (
	"encoding/json"
	"net/http"

	"kindling_server/services"
)

// DatePlanController handles HTTP requests for date proposals.
type DatePlanController struct {
	Plans *services.DatePlanService
}

// NewDatePlanController creates a new DatePlanController instance.
func NewDatePlanController(plans *services.DatePlanService) *DatePlanController {
	return &DatePlanController{Plans: plans}
}

// HandlePropose creates or replaces the match's date proposal.
func (dc *DatePlanController) HandlePropose(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID   string `json:"matchId"`
		UserID    string `json:"userId"`
		DateStart string `json:"dateStart"`
		DateEnd   string `json:"dateEnd"`
		Activity  string `json:"activity"`
		Place     string `json:"place"`
		PlaceID   string `json:"placeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MatchID == "" || request.UserID == "" {
		http.Error(w, "matchId and userId are required", http.StatusBadRequest)
		return
	}

	plan, err := dc.Plans.Propose(r.Context(), request.MatchID, request.UserID,
		request.DateStart, request.DateEnd, request.Activity, request.Place, request.PlaceID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"plan": plan})
}

// HandleRespond accepts or declines the pending proposal.
func (dc *DatePlanController) HandleRespond(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID string `json:"matchId"`
		UserID  string `json:"userId"`
		Accept  bool   `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.MatchID == "" || request.UserID == "" {
		http.Error(w, "matchId and userId are required", http.StatusBadRequest)
		return
	}

	plan, err := dc.Plans.Respond(r.Context(), request.MatchID, request.UserID, request.Accept)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"plan": plan})
}

// HandleGet returns the match's current date plan, if any.
func (dc *DatePlanController) HandleGet(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("matchId")
	if matchID == "" {
		http.Error(w, "matchId is required", http.StatusBadRequest)
		return
	}

	plan, err := dc.Plans.Get(r.Context(), matchID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"plan": plan})
}
