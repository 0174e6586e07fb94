package handler

import (
	"github.com/gorilla/mux"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Auth     *AuthHandler
	Accounts *AccountHandler
	Ledger   *LedgerHandler
	Admin    *AdminHandler
	Resolver PrincipalResolver
}

// RegisterRoutes mounts the public auth endpoints on router and everything
// else behind bearer authentication.
func RegisterRoutes(router *mux.Router, h Handlers) {
	router.HandleFunc("/auth/register", h.Auth.Register).Methods("POST")
	router.HandleFunc("/auth/login", h.Auth.Login).Methods("POST")

	api := router.NewRoute().Subrouter()
	api.Use(AuthMiddleware(h.Resolver))

	// Account routes
	api.HandleFunc("/me", h.Accounts.GetMe).Methods("GET")
	api.HandleFunc("/me", h.Accounts.UpdateMe).Methods("PUT")
	api.HandleFunc("/me/summary", h.Accounts.Summary).Methods("GET")
	api.HandleFunc("/me/entries", h.Accounts.ListEntries).Methods("GET")
	api.HandleFunc("/me/entries/recent", h.Accounts.RecentEntries).Methods("GET")

	// Ledger routes
	api.HandleFunc("/deposits", h.Ledger.Deposit).Methods("POST")
	api.HandleFunc("/withdrawals", h.Ledger.Withdraw).Methods("POST")
	api.HandleFunc("/transfers", h.Ledger.Transfer).Methods("POST")
	api.HandleFunc("/conversions", h.Ledger.Convert).Methods("POST")
	api.HandleFunc("/conversions/quote", h.Ledger.Quote).Methods("GET")

	// Admin routes
	api.HandleFunc("/admin/pending", h.Admin.ListPending).Methods("GET")
	api.HandleFunc("/admin/entries/{entry_id}/confirm", h.Admin.Confirm).Methods("POST")
	api.HandleFunc("/admin/entries/{entry_id}/reject", h.Admin.Reject).Methods("POST")
}
