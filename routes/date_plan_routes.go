package routes

import (
	"kindling_server/controllers"
	"kindling_server/services"

	"github.com/gorilla/mux"
)

// RegisterDatePlanRoutes sets up routes for date proposals under /api/dates.
func RegisterDatePlanRoutes(r *mux.Router, plans *services.DatePlanService) {
	controller := controllers.NewDatePlanController(plans)

	dateRouter := r.PathPrefix("/api/dates").Subrouter()
	dateRouter.HandleFunc("/propose", controller.HandlePropose).Methods("POST")
	dateRouter.HandleFunc("/respond", controller.HandleRespond).Methods("POST")
	dateRouter.HandleFunc("", controller.HandleGet).Methods("GET")
}
