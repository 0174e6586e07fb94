package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

const accountColumns = `id, account_number, email, display_name, password_hash, balance, currency_code, is_admin, created_at, updated_at`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, account_number, email, display_name, password_hash, balance, currency_code, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.AccountNumber,
		account.Email,
		account.DisplayName,
		account.PasswordHash,
		account.Balance.String(),
		account.CurrencyCode,
		account.IsAdmin,
		now,
		now,
	)
	if err != nil {
		if appErr := accountUniqueViolation(err); appErr != nil {
			r.logger.Warn("Duplicate account creation attempt", "account_id", account.ID, "code", appErr.Code)
			return appErr
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return errors.ErrStoreFailure.WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID, "account_number", account.AccountNumber)
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.scanAccount(ctx, query, id)
}

func (r *accountRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return r.scanAccount(ctx, query, accountNumber)
}

func (r *accountRepository) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(ctx, query, email)
}

func (r *accountRepository) scanAccount(ctx context.Context, query string, key interface{}) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&account.ID,
		&account.AccountNumber,
		&account.Email,
		&account.DisplayName,
		&account.PasswordHash,
		&balanceStr,
		&account.CurrencyCode,
		&account.IsAdmin,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Account not found", "key", key)
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "key", key, "error", err)
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		r.logger.Error("Failed to parse balance", "account_id", account.ID, "balance_str", balanceStr, "error", err)
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}

	account.Balance = balance
	return &account, nil
}

func (r *accountRepository) UpdateAccountBalance(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`
	if err := r.execOne(ctx, query, id, newBalance.String(), time.Now().UTC(), id); err != nil {
		return err
	}
	r.logger.Info("Account balance updated", "account_id", id, "new_balance", newBalance)
	return nil
}

func (r *accountRepository) UpdateAccountCurrency(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, currency string) error {
	query := `
		UPDATE accounts
		SET balance = $1, currency_code = $2, updated_at = $3
		WHERE id = $4
	`
	if err := r.execOne(ctx, query, id, newBalance.String(), currency, time.Now().UTC(), id); err != nil {
		return err
	}
	r.logger.Info("Account currency updated", "account_id", id, "new_balance", newBalance, "currency", currency)
	return nil
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, email string) error {
	query := `
		UPDATE accounts
		SET display_name = $1, email = $2, updated_at = $3
		WHERE id = $4
	`
	return r.execOne(ctx, query, id, displayName, email, time.Now().UTC(), id)
}

// execOne runs an UPDATE that must touch exactly the row identified by id.
func (r *accountRepository) execOne(ctx context.Context, query string, id uuid.UUID, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if appErr := accountUniqueViolation(err); appErr != nil {
			return appErr
		}
		r.logger.Error("Failed to update account", "account_id", id, "error", err)
		return errors.ErrStoreFailure.WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.ErrStoreFailure.WithDetails(err.Error())
	}
	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_id", id)
		return errors.ErrAccountNotFound
	}
	return nil
}

func accountUniqueViolation(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case "accounts_account_number_key":
		return errors.ErrDuplicateAccountNumber
	default:
		return errors.ErrDuplicateAccount
	}
}
