package routes

import (
	"kindling_server/controllers"
	"kindling_server/services"

	"github.com/gorilla/mux"
)

// RegisterConversationRoutes sets up match and conversation routes.
func RegisterConversationRoutes(r *mux.Router, conversations *services.ConversationService, sweeper *services.SweeperService) {
	controller := controllers.NewConversationController(conversations, sweeper)

	matchRouter := r.PathPrefix("/api/matches").Subrouter()
	matchRouter.HandleFunc("/create", controller.HandleCreateMatch).Methods("POST")

	conversationRouter := r.PathPrefix("/api/conversations").Subrouter()
	conversationRouter.HandleFunc("/message", controller.HandleSendMessage).Methods("POST")
	conversationRouter.HandleFunc("/consent", controller.HandleConsent).Methods("POST")
	conversationRouter.HandleFunc("/archive", controller.HandleArchive).Methods("POST")
	conversationRouter.HandleFunc("/close", controller.HandleClose).Methods("POST")
	conversationRouter.HandleFunc("", controller.HandleList).Methods("GET")
}
