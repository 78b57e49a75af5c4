package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kindling_server/services"
)

func newWebhookController() *PurchaseController {
	// The unauthorized and malformed paths never reach storage.
	return NewPurchaseController(&services.PurchaseService{}, "s3cret")
}

func TestWebhookRejectsMissingOrWrongSecret(t *testing.T) {
	controller := newWebhookController()

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no credentials", func(r *http.Request) {}},
		{"wrong header secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{"wrong query secret", func(r *http.Request) { r.URL.RawQuery = "secret=nope" }},
		{"non-bearer header", func(r *http.Request) { r.Header.Set("Authorization", "s3cret") }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/purchases/webhook", strings.NewReader("{}"))
			tc.setup(r)
			w := httptest.NewRecorder()

			controller.HandleWebhook(w, r)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if strings.Contains(w.Body.String(), "s3cret") {
				t.Error("response leaked the configured secret")
			}
		})
	}
}

func TestWebhookAcceptsHeaderOrQuerySecret(t *testing.T) {
	controller := newWebhookController()

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") }},
		{"query parameter", func(r *http.Request) { r.URL.RawQuery = "secret=s3cret" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Malformed body: still a 200 with an ignored outcome, so the
			// platform does not redeliver.
			r := httptest.NewRequest(http.MethodPost, "/api/purchases/webhook", strings.NewReader("{nope"))
			tc.setup(r)
			w := httptest.NewRecorder()

			controller.HandleWebhook(w, r)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var result services.WebhookResult
			if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if result.Outcome != "ignored" || result.Reason != "malformed_payload" {
				t.Errorf("result = %+v, want ignored/malformed_payload", result)
			}
		})
	}
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrMissingField, http.StatusBadRequest, "MISSING_FIELD"},
		{services.ErrNotParticipant, http.StatusForbidden, "NOT_PARTICIPANT"},
		{services.ErrMatchNotFound, http.StatusNotFound, "MATCH_NOT_FOUND"},
		{services.ErrPlanAccepted, http.StatusConflict, "PLAN_ACCEPTED"},
		{services.ErrConversationEnded, http.StatusGone, "CONVERSATION_ENDED"},
		{services.ErrTokenExpired, http.StatusGone, "TOKEN_EXPIRED"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondError(w, tc.err)
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Errorf("error = %v, want %s", body["error"], tc.code)
			}
		})
	}
}
