package routes

import (
	"kindling_server/controllers"
	"kindling_server/services"

	"github.com/gorilla/mux"
)

// RegisterVerificationRoutes sets up meetup verification routes under
// /api/verification.
func RegisterVerificationRoutes(r *mux.Router, verification *services.VerificationService) {
	controller := controllers.NewVerificationController(verification)

	verificationRouter := r.PathPrefix("/api/verification").Subrouter()
	verificationRouter.HandleFunc("/qr/issue", controller.HandleIssueToken).Methods("POST")
	verificationRouter.HandleFunc("/qr/confirm", controller.HandleConfirm).Methods("POST")
	verificationRouter.HandleFunc("/tap/start", controller.HandleTapStart).Methods("POST")
	verificationRouter.HandleFunc("/tap/status", controller.HandleTapStatus).Methods("GET")
}
