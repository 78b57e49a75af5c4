package routes

import (
	"kindling_server/controllers"
	"kindling_server/services"

	"github.com/gorilla/mux"
)

// RegisterWalletRoutes sets up the wallet read route under /api/wallet.
func RegisterWalletRoutes(r *mux.Router, ledger *services.LedgerService) {
	controller := controllers.NewWalletController(ledger)

	walletRouter := r.PathPrefix("/api/wallet").Subrouter()
	walletRouter.HandleFunc("", controller.HandleGetWallet).Methods("GET")
}
