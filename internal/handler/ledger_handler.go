package handler

import (
	"net/http"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/service"
)

type LedgerHandler struct {
	ledgerService *service.LedgerService
}

func NewLedgerHandler(ledgerService *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
	}
}

type BalanceChangeRequest struct {
	Amount         string `json:"amount"`
	Mode           string `json:"mode"`
	ProofReference string `json:"proof_reference,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type TransferRequest struct {
	RecipientAccountNumber string `json:"recipient_account_number"`
	Amount                 string `json:"amount"`
	Description            string `json:"description,omitempty"`
	IdempotencyKey         string `json:"idempotency_key,omitempty"`
}

type ConvertRequest struct {
	TargetCurrency string `json:"target_currency"`
}

func operationStatus(result *service.OperationResult) int {
	switch {
	case result.Replayed:
		return http.StatusOK
	case result.Status == domain.EntryStatusPending:
		return http.StatusAccepted
	default:
		return http.StatusCreated
	}
}

func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.balanceChange(w, r, domain.EntryKindDeposit)
}

func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.balanceChange(w, r, domain.EntryKindWithdrawal)
}

func (h *LedgerHandler) balanceChange(w http.ResponseWriter, r *http.Request, kind domain.EntryKind) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}
	var req BalanceChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	key, ok := parseIdempotencyKey(w, r, req.IdempotencyKey)
	if !ok {
		return
	}

	mode := domain.OperationMode(req.Mode)
	if mode == "" {
		mode = domain.ModeSelfService
	}

	var (
		result *service.OperationResult
		err    error
	)
	if kind == domain.EntryKindDeposit {
		result, err = h.ledgerService.Deposit(r.Context(), service.DepositRequest{
			AccountID: principal.AccountID, Amount: amount, Mode: mode, ProofReference: req.ProofReference, IdempotencyKey: key,
		})
	} else {
		result, err = h.ledgerService.Withdraw(r.Context(), service.WithdrawRequest{
			AccountID: principal.AccountID, Amount: amount, Mode: mode, ProofReference: req.ProofReference, IdempotencyKey: key,
		})
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, operationStatus(result), result)
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	key, ok := parseIdempotencyKey(w, r, req.IdempotencyKey)
	if !ok {
		return
	}

	result, err := h.ledgerService.Transfer(r.Context(), service.TransferRequest{
		SenderAccountID:        principal.AccountID,
		RecipientAccountNumber: req.RecipientAccountNumber,
		Amount:                 amount,
		Description:            req.Description,
		IdempotencyKey:         key,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, operationStatus(result), result)
}

func (h *LedgerHandler) Convert(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}
	var req ConvertRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.ledgerService.Convert(r.Context(), service.ConvertRequest{
		AccountID:      principal.AccountID,
		TargetCurrency: req.TargetCurrency,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *LedgerHandler) Quote(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrReject(w, r)
	if !ok {
		return
	}

	quote, err := h.ledgerService.Quote(r.Context(), principal.AccountID, r.URL.Query().Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
