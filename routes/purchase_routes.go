package routes

import (
	"kindling_server/controllers"
	"kindling_server/services"

	"github.com/gorilla/mux"
)

// RegisterPurchaseRoutes sets up the payment webhook and identity-link routes
// under /api/purchases.
func RegisterPurchaseRoutes(r *mux.Router, purchases *services.PurchaseService, webhookSecret string) {
	controller := controllers.NewPurchaseController(purchases, webhookSecret)

	purchaseRouter := r.PathPrefix("/api/purchases").Subrouter()
	purchaseRouter.HandleFunc("/webhook", controller.HandleWebhook).Methods("POST")
	purchaseRouter.HandleFunc("/link", controller.HandleLink).Methods("POST")
}
