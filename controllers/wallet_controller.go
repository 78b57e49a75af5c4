package controllers

import (
	"net/http"

	"kindling_server/services"
)

// WalletController handles HTTP requests for wallet reads.
type WalletController struct {
	Ledger *services.LedgerService
}

// NewWalletController creates a new WalletController instance.
func NewWalletController(ledger *services.LedgerService) *WalletController {
	return &WalletController{Ledger: ledger}
}

// HandleGetWallet returns the user's balance and ledger history.
func (wc *WalletController) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	wallet, err := wc.Ledger.GetWallet(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	transactions, err := wc.Ledger.GetTransactions(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":       wallet,
		"transactions": transactions,
	})
}
