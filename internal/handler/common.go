package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/errors"
)

const (
	maxBodyBytes    = 1 << 20
	maxAmountLength = 32
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	EntryID string `json:"entry_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
		EntryID: appErr.EntryID,
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

// writeServiceError renders any error returned by a service.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, errors.From(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, errors.ErrValidation.WithDetails("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func parseAmount(w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxAmountLength {
		writeError(w, errors.ErrInvalidAmount.WithDetails("amount is too long"))
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, errors.ErrInvalidAmount.WithDetails("invalid amount format"))
		return decimal.Zero, false
	}
	return amount, true
}

// parseIdempotencyKey reads the key from the body field, falling back to the
// Idempotency-Key header. Absent means no key.
func parseIdempotencyKey(w http.ResponseWriter, r *http.Request, fromBody string) (*uuid.UUID, bool) {
	raw := strings.TrimSpace(fromBody)
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if raw == "" {
		return nil, true
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, errors.ErrValidation.WithDetails("invalid idempotency key format"))
		return nil, false
	}
	return &key, true
}

func parseEntryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["entry_id"])
	if err != nil {
		writeError(w, errors.ErrInvalidEntryID)
		return uuid.Nil, false
	}
	return id, true
}
