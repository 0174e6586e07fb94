package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryKindDeposit    EntryKind = "deposit"
	EntryKindWithdrawal EntryKind = "withdrawal"
	EntryKindTransfer   EntryKind = "transfer"
	EntryKindConversion EntryKind = "conversion"
)

type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFlagged   EntryStatus = "flagged"
	EntryStatusFailed    EntryStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s EntryStatus) Terminal() bool {
	return s != EntryStatusPending
}

// OperationMode selects between an immediate balance effect and a pending
// entry that waits for an admin.
type OperationMode string

const (
	ModeSelfService  OperationMode = "self_service"
	ModeManualReview OperationMode = "manual_review"
)

func (m OperationMode) Valid() bool {
	return m == ModeSelfService || m == ModeManualReview
}

// LedgerEntry is one line on an account's ledger. Amount is signed: positive
// credits the owner, negative debits it.
type LedgerEntry struct {
	ID                    uuid.UUID       `json:"id"`
	OwnerAccountID        uuid.UUID       `json:"owner_account_id"`
	Kind                  EntryKind       `json:"kind"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description"`
	Status                EntryStatus     `json:"status"`
	CounterpartyAccountID *uuid.UUID      `json:"counterparty_account_id,omitempty"`
	ProofReference        *string         `json:"proof_reference,omitempty"`
	Annotation            *string         `json:"annotation,omitempty"`
	IdempotencyKey        *uuid.UUID      `json:"idempotency_key,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// PendingEntry is a review queue row: the entry plus who asked for it.
type PendingEntry struct {
	LedgerEntry
	OwnerDisplayName   string `json:"owner_display_name"`
	OwnerAccountNumber string `json:"owner_account_number"`
	OwnerCurrency      string `json:"owner_currency"`
}

// EntryTotals aggregates an account's completed money movements.
type EntryTotals struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
}

type EntryRepository interface {
	CreateEntry(ctx context.Context, entry *LedgerEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*LedgerEntry, error)
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*LedgerEntry, error)
	// GetEntryByIdempotencyKey returns nil, nil when no entry carries the key.
	GetEntryByIdempotencyKey(ctx context.Context, ownerID, key uuid.UUID) (*LedgerEntry, error)
	UpdateEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus, annotation *string) error
	// ListRecentEntries returns the owner's entries newest first.
	ListRecentEntries(ctx context.Context, ownerID uuid.UUID, limit int) ([]LedgerEntry, error)
	// ListEntries filters by a case-insensitive match on description or kind
	// and returns the page plus the total number of matches.
	ListEntries(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]LedgerEntry, int, error)
	ListPendingEntries(ctx context.Context, kind EntryKind) ([]PendingEntry, error)
	CountPendingEntries(ctx context.Context, ownerID uuid.UUID) (int, error)
	// SumCompleted totals completed entries made since the owner's last
	// conversion, so every amount is in the account's current currency.
	SumCompleted(ctx context.Context, ownerID uuid.UUID) (*EntryTotals, error)
}
