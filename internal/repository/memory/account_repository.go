package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

type accountRepository struct {
	*view
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	return r.write(ctx, "CreateAccount", func(d *dataset) error {
		if _, exists := d.accounts[account.ID]; exists {
			return errors.ErrDuplicateAccount
		}
		for _, a := range d.accounts {
			if a.Email == account.Email {
				return errors.ErrDuplicateAccount
			}
			if a.AccountNumber == account.AccountNumber {
				return errors.ErrDuplicateAccountNumber
			}
		}

		now := time.Now().UTC()
		account.CreatedAt = now
		account.UpdatedAt = now
		d.accounts[account.ID] = *account
		return nil
	})
}

func (r *accountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var found *domain.Account
	err := r.read(ctx, func(d *dataset) error {
		a, ok := d.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		found = &a
		return nil
	})
	return found, err
}

// GetAccountForUpdate needs no extra locking: a transaction already holds the
// store mutex.
func (r *accountRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.GetAccount(ctx, id)
}

func (r *accountRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return r.find(ctx, func(a *domain.Account) bool { return a.AccountNumber == accountNumber })
}

func (r *accountRepository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.find(ctx, func(a *domain.Account) bool { return a.Email == email })
}

func (r *accountRepository) find(ctx context.Context, match func(*domain.Account) bool) (*domain.Account, error) {
	var found *domain.Account
	err := r.read(ctx, func(d *dataset) error {
		for _, a := range d.accounts {
			if match(&a) {
				found = &a
				return nil
			}
		}
		return errors.ErrAccountNotFound
	})
	return found, err
}

func (r *accountRepository) UpdateAccountBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error {
	return r.update(ctx, "UpdateAccountBalance", id, func(a *domain.Account) {
		a.Balance = newBalance
	})
}

func (r *accountRepository) UpdateAccountCurrency(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, currency string) error {
	return r.update(ctx, "UpdateAccountCurrency", id, func(a *domain.Account) {
		a.Balance = newBalance
		a.CurrencyCode = currency
	})
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, email string) error {
	return r.write(ctx, "UpdateProfile", func(d *dataset) error {
		for otherID, a := range d.accounts {
			if otherID != id && a.Email == email {
				return errors.ErrDuplicateAccount
			}
		}
		a, ok := d.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		a.DisplayName = displayName
		a.Email = email
		a.UpdatedAt = time.Now().UTC()
		d.accounts[id] = a
		return nil
	})
}

func (r *accountRepository) update(ctx context.Context, op string, id uuid.UUID, mutate func(*domain.Account)) error {
	return r.write(ctx, op, func(d *dataset) error {
		a, ok := d.accounts[id]
		if !ok {
			return errors.ErrAccountNotFound
		}
		mutate(&a)
		if a.Balance.IsNegative() {
			return errors.ErrStoreFailure.WithDetails("balance check constraint violated")
		}
		a.UpdatedAt = time.Now().UTC()
		d.accounts[id] = a
		return nil
	})
}
