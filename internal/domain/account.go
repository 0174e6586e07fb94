package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID            uuid.UUID       `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Email         string          `json:"email"`
	DisplayName   string          `json:"display_name"`
	PasswordHash  string          `json:"-"`
	Balance       decimal.Decimal `json:"balance"`
	CurrencyCode  string          `json:"currency"`
	IsAdmin       bool            `json:"is_admin"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Principal is the authenticated caller of a ledger operation.
type Principal struct {
	AccountID uuid.UUID
	IsAdmin   bool
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetAccountForUpdate locks the account row until the surrounding
	// transaction ends.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error
	UpdateAccountCurrency(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, currency string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName, email string) error
}
