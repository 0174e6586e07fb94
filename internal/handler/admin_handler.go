package handler

import (
	"net/http"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/service"
)

type AdminHandler struct {
	adminService *service.AdminService
}

func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}

	kind := domain.EntryKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.EntryKindDeposit
	}

	pending, err := h.adminService.ListPending(r.Context(), principal, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *AdminHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}
	entryID, ok := parseEntryID(w, r)
	if !ok {
		return
	}

	result, err := h.adminService.Confirm(r.Context(), entryID, principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}
	entryID, ok := parseEntryID(w, r)
	if !ok {
		return
	}
	var req RejectRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.adminService.RejectEntry(r.Context(), entryID, principal, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
