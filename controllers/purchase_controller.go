package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"kindling_server/services"
)

// PurchaseController handles the payment platform's webhook and the
// identity-link endpoint.
type PurchaseController struct {
	Purchases *services.PurchaseService
	// WebhookSecret is the shared secret the platform presents on each call.
	WebhookSecret string
}

// NewPurchaseController creates a new PurchaseController instance.
func NewPurchaseController(purchases *services.PurchaseService, webhookSecret string) *PurchaseController {
	return &PurchaseController{Purchases: purchases, WebhookSecret: webhookSecret}
}

// HandleWebhook ingests a purchase event. Every understood event answers 200
// so the platform stops redelivering; only storage failures answer 500.
func (pc *PurchaseController) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if !pc.authorized(r) {
		log.Println("❌ Webhook rejected: bad or missing secret")
		respondJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "UNAUTHORIZED"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := pc.Purchases.HandleWebhook(r.Context(), body)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// authorized accepts the secret as a bearer header or a query parameter; some
// platform dashboards can only configure one of the two.
func (pc *PurchaseController) authorized(r *http.Request) bool {
	candidate := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if candidate == "" || candidate == r.Header.Get("Authorization") {
		candidate = r.URL.Query().Get("secret")
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(pc.WebhookSecret)) == 1
}

// HandleLink records an alias for a user and replays any purchases that were
// parked waiting for it.
func (pc *PurchaseController) HandleLink(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID string `json:"userId"`
		Alias  string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.UserID == "" || request.Alias == "" {
		http.Error(w, "userId and alias are required", http.StatusBadRequest)
		return
	}

	replayed, err := pc.Purchases.LinkIdentity(r.Context(), request.UserID, request.Alias)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Identity linked",
		"replayed": replayed,
	})
}
