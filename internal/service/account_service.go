package service

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/auth"
	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

const (
	EntriesPerPage      = 10
	DefaultRecentLimit  = 5
	maxRecentLimit      = 50
	maxEntryPage        = math.MaxInt32 / EntriesPerPage
	accountNumberDigits = 10
	accountNumberTries  = 5
)

type AccountService struct {
	store           domain.UnitOfWork
	tokens          *auth.TokenManager
	validator       *ValidationHelper
	logger          *slog.Logger
	startingBalance decimal.Decimal
	defaultCurrency string
}

func NewAccountService(
	store domain.UnitOfWork,
	tokens *auth.TokenManager,
	logger *slog.Logger,
	startingBalance decimal.Decimal,
	defaultCurrency string,
) *AccountService {
	return &AccountService{
		store:           store,
		tokens:          tokens,
		validator:       NewValidationHelper(),
		logger:          logger,
		startingBalance: startingBalance,
		defaultCurrency: domain.NormalizeCurrency(defaultCurrency),
	}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Currency string `json:"currency" validate:"omitempty,currency"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=255"`
	Email string `json:"email" validate:"required,email,max=255"`
}

type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *domain.Account `json:"account"`
}

type AccountSummary struct {
	AccountNumber string          `json:"account_number"`
	DisplayName   string          `json:"display_name"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	TotalIncome   decimal.Decimal `json:"total_income"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
}

type EntryPage struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	Page       int                  `json:"page"`
	TotalPages int                  `json:"total_pages"`
	Total      int                  `json:"total"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	return s.createAccount(ctx, req, false)
}

// EnsureAdmin creates the bootstrap admin account unless an account with the
// email already exists.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string) (*domain.Account, error) {
	email = normalizeEmail(email)
	existing, err := s.store.Accounts().GetAccountByEmail(ctx, email)
	if err == nil {
		if !existing.IsAdmin {
			s.logger.Warn("Bootstrap admin email belongs to a regular account", "account_id", existing.ID)
		}
		return existing, nil
	}
	if !stderrors.Is(err, errors.ErrAccountNotFound) {
		return nil, errors.From(err)
	}

	req := RegisterRequest{Name: "Administrator", Email: email, Password: password}
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	return s.createAccount(ctx, req, true)
}

func (s *AccountService) createAccount(ctx context.Context, req RegisterRequest, isAdmin bool) (*domain.Account, error) {
	currency := s.defaultCurrency
	if req.Currency != "" {
		currency = domain.NormalizeCurrency(req.Currency)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		return nil, errors.ErrInternal.WithDetails(err.Error())
	}

	for attempt := 1; attempt <= accountNumberTries; attempt++ {
		number, err := newAccountNumber()
		if err != nil {
			return nil, errors.ErrInternal.WithDetails(err.Error())
		}

		account := &domain.Account{
			ID:            uuid.New(),
			AccountNumber: number,
			Email:         req.Email,
			DisplayName:   req.Name,
			PasswordHash:  hash,
			Balance:       domain.RoundToMinorUnit(s.startingBalance, currency),
			CurrencyCode:  currency,
			IsAdmin:       isAdmin,
		}

		err = s.store.Accounts().CreateAccount(ctx, account)
		if err == nil {
			s.logger.Info("Account registered", "account_id", account.ID, "account_number", account.AccountNumber, "is_admin", isAdmin)
			return account, nil
		}
		if !stderrors.Is(err, errors.ErrDuplicateAccountNumber) {
			return nil, errors.From(err)
		}
		s.logger.Warn("Account number collision, retrying", "attempt", attempt)
	}
	return nil, errors.ErrDuplicateAccountNumber.WithDetails(fmt.Sprintf("no free account number after %d attempts", accountNumberTries))
}

func newAccountNumber() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(accountNumberDigits), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", accountNumberDigits, n), nil
}

func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}

	account, err := s.store.Accounts().GetAccountByEmail(ctx, req.Email)
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, errors.From(err)
	}
	if !auth.CheckPassword(req.Password, account.PasswordHash) {
		s.logger.Warn("Failed login attempt", "account_id", account.ID)
		return nil, errors.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, errors.ErrInternal.WithDetails(err.Error())
	}

	s.logger.Info("Login succeeded", "account_id", account.ID)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// ResolvePrincipal turns a bearer token into the caller's identity. The admin
// flag is read from the account row, not from the token.
func (s *AccountService) ResolvePrincipal(ctx context.Context, token string) (*domain.Principal, error) {
	accountID, err := s.tokens.Parse(token)
	if err != nil {
		return nil, errors.ErrUnauthenticated.WithDetails(err.Error())
	}

	account, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		if stderrors.Is(err, errors.ErrAccountNotFound) {
			return nil, errors.ErrUnauthenticated.WithDetails("account no longer exists")
		}
		return nil, errors.From(err)
	}
	return &domain.Principal{AccountID: account.ID, IsAdmin: account.IsAdmin}, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		return nil, errors.From(err)
	}
	return account, nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, accountID uuid.UUID, req UpdateProfileRequest) (*domain.Account, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}

	if err := s.store.Accounts().UpdateProfile(ctx, accountID, req.Name, req.Email); err != nil {
		return nil, errors.From(err)
	}
	s.logger.Info("Profile updated", "account_id", accountID)
	return s.GetAccount(ctx, accountID)
}

func (s *AccountService) Summary(ctx context.Context, accountID uuid.UUID) (*AccountSummary, error) {
	account, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		return nil, errors.From(err)
	}
	totals, err := s.store.Entries().SumCompleted(ctx, accountID)
	if err != nil {
		return nil, errors.From(err)
	}

	return &AccountSummary{
		AccountNumber: account.AccountNumber,
		DisplayName:   account.DisplayName,
		Balance:       account.Balance,
		Currency:      account.CurrencyCode,
		TotalIncome:   totals.Income,
		TotalExpenses: totals.Expenses,
	}, nil
}

// ListEntries pages through the account's history, newest first.
func (s *AccountService) ListEntries(ctx context.Context, accountID uuid.UUID, query string, page int) (*EntryPage, error) {
	if page < 1 {
		page = 1
	}
	// Pages past maxEntryPage are empty anyway; clamping keeps the offset from overflowing.
	offsetPage := page
	if offsetPage > maxEntryPage {
		offsetPage = maxEntryPage
	}

	entries, total, err := s.store.Entries().ListEntries(ctx, accountID, query, EntriesPerPage, (offsetPage-1)*EntriesPerPage)
	if err != nil {
		return nil, errors.From(err)
	}

	return &EntryPage{
		Entries:    entries,
		Page:       page,
		TotalPages: (total + EntriesPerPage - 1) / EntriesPerPage,
		Total:      total,
	}, nil
}

func (s *AccountService) RecentEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	entries, err := s.store.Entries().ListRecentEntries(ctx, accountID, limit)
	if err != nil {
		return nil, errors.From(err)
	}
	return entries, nil
}
