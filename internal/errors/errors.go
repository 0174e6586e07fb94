package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	Unauthenticated         ErrorCode = "unauthenticated"
	Unauthorized            ErrorCode = "unauthorized"
	ValidationError         ErrorCode = "validation_error"
	InvalidCredentials      ErrorCode = "invalid_credentials"
	AccountNotFound         ErrorCode = "account_not_found"
	EntryNotFound           ErrorCode = "entry_not_found"
	DuplicateAccount        ErrorCode = "duplicate_account"
	DuplicateAccountNumber  ErrorCode = "duplicate_account_number"
	DuplicateEntry          ErrorCode = "duplicate_entry"
	SelfTransfer            ErrorCode = "self_transfer"
	InsufficientFunds       ErrorCode = "insufficient_funds"
	FraudFlagged            ErrorCode = "fraud_flagged"
	FraudGateUnavailable    ErrorCode = "fraud_gate_unavailable"
	ExchangeRateUnavailable ErrorCode = "exchange_rate_unavailable"
	NoOpConversion          ErrorCode = "no_op_conversion"
	InvalidEntryState       ErrorCode = "invalid_entry_state"
	ConcurrentModification  ErrorCode = "concurrent_modification"
	RateLimited             ErrorCode = "rate_limited"
	StoreFailure            ErrorCode = "store_failure"
	InternalError           ErrorCode = "internal_error"
)

// AppError is the structured failure returned by every service operation.
// EntryID is set when the failure left a ledger entry behind (a flagged
// transfer or a withdrawal that failed at confirmation).
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	EntryID string    `json:"entry_id,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so that errors.Is works against the predefined values
// even after WithDetails produced a copy.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy, so the predefined errors below are never mutated.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) WithEntry(entryID fmt.Stringer) *AppError {
	cp := *e
	cp.EntryID = entryID.String()
	return &cp
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case Unauthenticated, InvalidCredentials:
		return http.StatusUnauthorized
	case Unauthorized:
		return http.StatusForbidden
	case ValidationError, SelfTransfer, NoOpConversion:
		return http.StatusBadRequest
	case AccountNotFound, EntryNotFound:
		return http.StatusNotFound
	case DuplicateAccount, DuplicateAccountNumber, DuplicateEntry, InvalidEntryState, ConcurrentModification:
		return http.StatusConflict
	case InsufficientFunds, FraudFlagged:
		return http.StatusUnprocessableEntity
	case RateLimited:
		return http.StatusTooManyRequests
	case FraudGateUnavailable, ExchangeRateUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// From converts any error into an *AppError. Errors that are not already
// AppErrors come from the persistence layer or the runtime and are reported
// as store failures.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return ErrStoreFailure.WithDetails("operation aborted: " + err.Error())
	}
	return ErrStoreFailure.WithDetails(err.Error())
}

// Predefined errors for common cases
var (
	ErrUnauthenticated         = NewAppError(Unauthenticated, "authentication required")
	ErrUnauthorized            = NewAppError(Unauthorized, "admin privileges required")
	ErrValidation              = NewAppError(ValidationError, "invalid input")
	ErrInvalidAmount           = NewAppError(ValidationError, "amount must be greater than 0")
	ErrInvalidCredentials      = NewAppError(InvalidCredentials, "invalid credentials")
	ErrInvalidEntryID          = NewAppError(ValidationError, "invalid entry id")
	ErrAccountNotFound         = NewAppError(AccountNotFound, "account not found")
	ErrEntryNotFound           = NewAppError(EntryNotFound, "ledger entry not found")
	ErrDuplicateAccount        = NewAppError(DuplicateAccount, "account already exists")
	ErrDuplicateAccountNumber  = NewAppError(DuplicateAccountNumber, "account number already taken")
	ErrDuplicateEntry          = NewAppError(DuplicateEntry, "request already processed")
	ErrSelfTransfer            = NewAppError(SelfTransfer, "cannot transfer money to your own account")
	ErrInsufficientFunds       = NewAppError(InsufficientFunds, "insufficient funds")
	ErrFraudFlagged            = NewAppError(FraudFlagged, "transaction flagged as potentially fraudulent")
	ErrFraudGateUnavailable    = NewAppError(FraudGateUnavailable, "fraud check unavailable")
	ErrExchangeRateUnavailable = NewAppError(ExchangeRateUnavailable, "exchange rate unavailable")
	ErrNoOpConversion          = NewAppError(NoOpConversion, "account already holds the target currency")
	ErrInvalidEntryState       = NewAppError(InvalidEntryState, "ledger entry is not awaiting this confirmation")
	ErrPendingEntries          = NewAppError(InvalidEntryState, "account has deposits or withdrawals awaiting review")
	ErrConcurrentModification  = NewAppError(ConcurrentModification, "account changed during the operation, retry")
	ErrRateLimited             = NewAppError(RateLimited, "too many requests, try again later")
	ErrStoreFailure            = NewAppError(StoreFailure, "storage operation failed")
	ErrCannotBeginTransaction  = NewAppError(StoreFailure, "cannot begin a transaction inside a transaction")
	ErrInternal                = NewAppError(InternalError, "an unexpected error occurred")
)
