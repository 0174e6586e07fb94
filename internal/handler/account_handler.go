package handler

import (
	"net/http"
	"strconv"

	"banking-ledger/internal/service"
)

// AccountHandler serves the caller's own profile and history.
type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

func (h *AccountHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), principal.AccountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}
	var req service.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.accountService.UpdateProfile(r.Context(), principal.AccountID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) Summary(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}

	summary, err := h.accountService.Summary(r.Context(), principal.AccountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AccountHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	result, err := h.accountService.ListEntries(r.Context(), principal.AccountID, r.URL.Query().Get("q"), page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AccountHandler) RecentEntries(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.accountService.RecentEntries(r.Context(), principal.AccountID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
