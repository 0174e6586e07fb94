package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

const insufficientFundsAnnotation = "Insufficient funds at confirmation"

// AdminService lets admins settle manual-review deposits and withdrawals.
type AdminService struct {
	store  domain.UnitOfWork
	logger *slog.Logger
}

func NewAdminService(store domain.UnitOfWork, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:  store,
		logger: logger,
	}
}

// Confirm settles a pending entry of either kind.
func (s *AdminService) Confirm(ctx context.Context, entryID uuid.UUID, principal domain.Principal) (*OperationResult, error) {
	if !principal.IsAdmin {
		return nil, errors.ErrUnauthorized
	}
	entry, err := s.store.Entries().GetEntry(ctx, entryID)
	if err != nil {
		return nil, errors.From(err)
	}
	switch entry.Kind {
	case domain.EntryKindDeposit:
		return s.ConfirmDeposit(ctx, entryID, principal)
	case domain.EntryKindWithdrawal:
		return s.ConfirmWithdrawal(ctx, entryID, principal)
	default:
		return nil, errors.ErrInvalidEntryState.WithDetails(fmt.Sprintf("%s entries are not reviewed", entry.Kind))
	}
}

func (s *AdminService) ConfirmDeposit(ctx context.Context, entryID uuid.UUID, principal domain.Principal) (*OperationResult, error) {
	return s.confirm(ctx, entryID, principal, domain.EntryKindDeposit)
}

// ConfirmWithdrawal re-checks the owner's balance at confirmation time. A
// shortfall marks the entry failed, commits that, and reports
// ErrInsufficientFunds carrying the entry id.
func (s *AdminService) ConfirmWithdrawal(ctx context.Context, entryID uuid.UUID, principal domain.Principal) (*OperationResult, error) {
	return s.confirm(ctx, entryID, principal, domain.EntryKindWithdrawal)
}

func (s *AdminService) confirm(ctx context.Context, entryID uuid.UUID, principal domain.Principal, kind domain.EntryKind) (*OperationResult, error) {
	if !principal.IsAdmin {
		s.logger.Warn("Non-admin attempted confirmation", "account_id", principal.AccountID, "entry_id", entryID)
		return nil, errors.ErrUnauthorized
	}
	s.logger.Info("Confirming entry", "entry_id", entryID, "kind", kind, "admin_id", principal.AccountID)

	var result *OperationResult
	var shortfall *errors.AppError
	err := s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		entry, err := lockPending(ctx, repos, entryID, kind)
		if err != nil {
			return err
		}

		owner, err := repos.Accounts().GetAccountForUpdate(ctx, entry.OwnerAccountID)
		if err != nil {
			return err
		}

		newBalance := owner.Balance.Add(entry.Amount)
		if newBalance.IsNegative() {
			note := insufficientFundsAnnotation
			if err := repos.Entries().UpdateEntryStatus(ctx, entry.ID, domain.EntryStatusFailed, &note); err != nil {
				return err
			}
			shortfall = errors.ErrInsufficientFunds.
				WithDetails(fmt.Sprintf("balance %s cannot cover %s", owner.Balance.StringFixed(domain.MinorUnits(owner.CurrencyCode)), entry.Amount.Abs())).
				WithEntry(entry.ID)
			return nil
		}

		if err := repos.Accounts().UpdateAccountBalance(ctx, owner.ID, newBalance); err != nil {
			return err
		}
		if err := repos.Entries().UpdateEntryStatus(ctx, entry.ID, domain.EntryStatusCompleted, nil); err != nil {
			return err
		}

		result = &OperationResult{
			EntryID:  entry.ID,
			Status:   domain.EntryStatusCompleted,
			Balance:  newBalance,
			Currency: owner.CurrencyCode,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Confirmation failed", "entry_id", entryID, "error", err)
		return nil, errors.From(err)
	}
	if shortfall != nil {
		s.logger.Warn("Withdrawal failed at confirmation", "entry_id", entryID)
		return nil, shortfall
	}

	s.logger.Info("Entry confirmed", "entry_id", entryID, "new_balance", result.Balance)
	return result, nil
}

// RejectEntry declines a pending deposit or withdrawal without touching the
// balance.
func (s *AdminService) RejectEntry(ctx context.Context, entryID uuid.UUID, principal domain.Principal, reason string) (*OperationResult, error) {
	if !principal.IsAdmin {
		return nil, errors.ErrUnauthorized
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Rejected by administrator"
	}

	var result *OperationResult
	err := s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		entry, err := lockPending(ctx, repos, entryID, "")
		if err != nil {
			return err
		}
		if err := repos.Entries().UpdateEntryStatus(ctx, entry.ID, domain.EntryStatusFailed, &reason); err != nil {
			return err
		}
		owner, err := repos.Accounts().GetAccount(ctx, entry.OwnerAccountID)
		if err != nil {
			return err
		}
		result = &OperationResult{
			EntryID:  entry.ID,
			Status:   domain.EntryStatusFailed,
			Balance:  owner.Balance,
			Currency: owner.CurrencyCode,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Rejection failed", "entry_id", entryID, "error", err)
		return nil, errors.From(err)
	}

	s.logger.Info("Entry rejected", "entry_id", entryID, "admin_id", principal.AccountID, "reason", reason)
	return result, nil
}

func (s *AdminService) ListPending(ctx context.Context, principal domain.Principal, kind domain.EntryKind) ([]domain.PendingEntry, error) {
	if !principal.IsAdmin {
		return nil, errors.ErrUnauthorized
	}
	if kind != domain.EntryKindDeposit && kind != domain.EntryKindWithdrawal {
		return nil, errors.ErrValidation.WithDetails("kind must be deposit or withdrawal")
	}

	pending, err := s.store.Entries().ListPendingEntries(ctx, kind)
	if err != nil {
		return nil, errors.From(err)
	}
	return pending, nil
}

// lockPending locks the entry and checks it is still pending. An empty kind
// accepts either deposits or withdrawals.
func lockPending(ctx context.Context, repos domain.Repositories, entryID uuid.UUID, kind domain.EntryKind) (*domain.LedgerEntry, error) {
	entry, err := repos.Entries().GetEntryForUpdate(ctx, entryID)
	if err != nil {
		return nil, err
	}

	kindOK := entry.Kind == kind
	if kind == "" {
		kindOK = entry.Kind == domain.EntryKindDeposit || entry.Kind == domain.EntryKindWithdrawal
	}
	if !kindOK || entry.Status != domain.EntryStatusPending {
		return nil, errors.ErrInvalidEntryState.WithDetails(fmt.Sprintf("entry is a %s in status %s", entry.Kind, entry.Status))
	}
	return entry, nil
}
