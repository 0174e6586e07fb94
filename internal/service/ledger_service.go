package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
	"banking-ledger/internal/oracle"
)

const DefaultFraudHistoryWindow = 20

// LedgerService moves money. Every balance change happens inside one unit of
// work that locks the affected accounts before reading their balances.
type LedgerService struct {
	store         domain.UnitOfWork
	fraud         domain.FraudGate
	rates         domain.RateOracle
	logger        *slog.Logger
	historyWindow int
}

func NewLedgerService(
	store domain.UnitOfWork,
	fraud domain.FraudGate,
	rates domain.RateOracle,
	logger *slog.Logger,
	historyWindow int,
) *LedgerService {
	if historyWindow <= 0 {
		historyWindow = DefaultFraudHistoryWindow
	}
	return &LedgerService{
		store:         store,
		fraud:         fraud,
		rates:         rates,
		logger:        logger,
		historyWindow: historyWindow,
	}
}

type DepositRequest struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	Mode           domain.OperationMode
	ProofReference string
	IdempotencyKey *uuid.UUID
}

type WithdrawRequest struct {
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	Mode           domain.OperationMode
	ProofReference string
	IdempotencyKey *uuid.UUID
}

type TransferRequest struct {
	SenderAccountID        uuid.UUID
	RecipientAccountNumber string
	Amount                 decimal.Decimal
	Description            string
	IdempotencyKey         *uuid.UUID
}

type ConvertRequest struct {
	AccountID      uuid.UUID
	TargetCurrency string
}

// OperationResult describes the entry an operation created (or, for a
// replayed idempotency key, the entry it created the first time).
type OperationResult struct {
	EntryID  uuid.UUID          `json:"entry_id"`
	Status   domain.EntryStatus `json:"status"`
	Balance  decimal.Decimal    `json:"balance"`
	Currency string             `json:"currency"`
	Replayed bool               `json:"replayed,omitempty"`
}

type Quote struct {
	From             string          `json:"from"`
	To               string          `json:"to"`
	Rate             decimal.Decimal `json:"rate"`
	Balance          decimal.Decimal `json:"balance"`
	ConvertedBalance decimal.Decimal `json:"converted_balance"`
}

func (s *LedgerService) Deposit(ctx context.Context, req DepositRequest) (*OperationResult, error) {
	if err := checkAmountScale(req.Amount); err != nil {
		return nil, err
	}
	s.logger.Info("Processing deposit", "account_id", req.AccountID, "amount", req.Amount, "mode", req.Mode)
	return s.moveFunds(ctx, domain.EntryKindDeposit, req.AccountID, req.Amount, req.Mode, req.ProofReference, req.IdempotencyKey)
}

func (s *LedgerService) Withdraw(ctx context.Context, req WithdrawRequest) (*OperationResult, error) {
	if err := checkAmountScale(req.Amount); err != nil {
		return nil, err
	}
	s.logger.Info("Processing withdrawal", "account_id", req.AccountID, "amount", req.Amount, "mode", req.Mode)
	return s.moveFunds(ctx, domain.EntryKindWithdrawal, req.AccountID, req.Amount, req.Mode, req.ProofReference, req.IdempotencyKey)
}

// moveFunds implements deposits and withdrawals. Self-service operations
// change the balance immediately; manual-review ones only record a pending
// entry for an admin to confirm.
func (s *LedgerService) moveFunds(
	ctx context.Context,
	kind domain.EntryKind,
	accountID uuid.UUID,
	amount decimal.Decimal,
	mode domain.OperationMode,
	proof string,
	key *uuid.UUID,
) (*OperationResult, error) {
	if !mode.Valid() {
		return nil, errors.ErrValidation.WithDetails(fmt.Sprintf("mode must be %q or %q", domain.ModeSelfService, domain.ModeManualReview))
	}
	if mode == domain.ModeManualReview && proof == "" {
		return nil, errors.ErrValidation.WithDetails("proof reference is required for manual review")
	}

	account, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		return nil, errors.From(err)
	}
	if err := validateAmount(amount, account.CurrencyCode); err != nil {
		return nil, err
	}

	signed := amount
	description := "Deposit"
	if kind == domain.EntryKindWithdrawal {
		signed = amount.Neg()
		description = "Withdrawal"
	}

	var result *OperationResult
	err = s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		locked, err := repos.Accounts().GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if locked.CurrencyCode != account.CurrencyCode {
			return errors.ErrConcurrentModification
		}

		if replay, err := s.replay(ctx, repos, accountID, key, kind, locked); err != nil || replay != nil {
			result = replay
			return err
		}

		entry := &domain.LedgerEntry{
			ID:             uuid.New(),
			OwnerAccountID: accountID,
			Kind:           kind,
			Amount:         signed,
			Description:    description,
			IdempotencyKey: key,
		}

		newBalance := locked.Balance
		if mode == domain.ModeManualReview {
			entry.Status = domain.EntryStatusPending
			entry.ProofReference = &proof
		} else {
			newBalance = locked.Balance.Add(signed)
			if newBalance.IsNegative() {
				s.logger.Warn("Insufficient funds for withdrawal", "account_id", accountID, "balance", locked.Balance, "amount", amount)
				return errors.ErrInsufficientFunds.WithDetails(fmt.Sprintf("balance %s is below %s", locked.Balance.StringFixed(domain.MinorUnits(locked.CurrencyCode)), amount))
			}
			if err := repos.Accounts().UpdateAccountBalance(ctx, accountID, newBalance); err != nil {
				return err
			}
			entry.Status = domain.EntryStatusCompleted
		}

		if err := repos.Entries().CreateEntry(ctx, entry); err != nil {
			return err
		}

		result = &OperationResult{
			EntryID:  entry.ID,
			Status:   entry.Status,
			Balance:  newBalance,
			Currency: locked.CurrencyCode,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Balance operation failed", "kind", kind, "account_id", accountID, "error", err)
		return nil, errors.From(err)
	}

	s.logger.Info("Balance operation recorded", "kind", kind, "entry_id", result.EntryID, "status", result.Status)
	return result, nil
}

// replay returns the outcome of an earlier request carrying the same
// idempotency key, or nil when the key is new. The caller must hold the
// owner's row lock.
func (s *LedgerService) replay(
	ctx context.Context,
	repos domain.Repositories,
	ownerID uuid.UUID,
	key *uuid.UUID,
	kind domain.EntryKind,
	owner *domain.Account,
) (*OperationResult, error) {
	if key == nil {
		return nil, nil
	}
	existing, err := repos.Entries().GetEntryByIdempotencyKey(ctx, ownerID, *key)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.Kind != kind {
		return nil, errors.ErrDuplicateEntry.WithDetails("idempotency key was used for a " + string(existing.Kind))
	}

	s.logger.Info("Returning existing entry for idempotency key", "idempotency_key", *key, "entry_id", existing.ID)
	if existing.Status == domain.EntryStatusFlagged {
		explanation := ""
		if existing.Annotation != nil {
			explanation = *existing.Annotation
		}
		return nil, errors.ErrFraudFlagged.WithDetails(explanation).WithEntry(existing.ID)
	}
	return &OperationResult{
		EntryID:  existing.ID,
		Status:   existing.Status,
		Balance:  owner.Balance,
		Currency: owner.CurrencyCode,
		Replayed: true,
	}, nil
}

// Transfer runs the fraud gate first, outside any transaction, then moves the
// funds in one unit of work that locks both accounts in ascending id order.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (*OperationResult, error) {
	if err := checkAmountScale(req.Amount); err != nil {
		return nil, err
	}
	s.logger.Info("Processing transfer",
		"sender_account_id", req.SenderAccountID,
		"recipient_account_number", req.RecipientAccountNumber,
		"amount", req.Amount,
		"idempotency_key", req.IdempotencyKey)

	if req.RecipientAccountNumber == "" {
		return nil, errors.ErrValidation.WithDetails("recipient account number is required")
	}

	sender, err := s.store.Accounts().GetAccount(ctx, req.SenderAccountID)
	if err != nil {
		return nil, errors.From(err)
	}
	recipient, err := s.store.Accounts().GetAccountByNumber(ctx, req.RecipientAccountNumber)
	if err != nil {
		return nil, errors.From(err)
	}
	if recipient.ID == sender.ID {
		return nil, errors.ErrSelfTransfer
	}
	if recipient.CurrencyCode != sender.CurrencyCode {
		return nil, errors.ErrValidation.WithDetails(fmt.Sprintf("currency mismatch: sender holds %s, recipient holds %s", sender.CurrencyCode, recipient.CurrencyCode))
	}
	if err := validateAmount(req.Amount, sender.CurrencyCode); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != nil {
		existing, err := s.store.Entries().GetEntryByIdempotencyKey(ctx, sender.ID, *req.IdempotencyKey)
		if err != nil {
			return nil, errors.From(err)
		}
		if existing != nil {
			return s.replayTransfer(ctx, sender.ID, req.IdempotencyKey)
		}
	}

	history, err := s.store.Entries().ListRecentEntries(ctx, sender.ID, s.historyWindow)
	if err != nil {
		return nil, errors.From(err)
	}

	recipientID := recipient.ID
	candidate := domain.LedgerEntry{
		OwnerAccountID:        sender.ID,
		Kind:                  domain.EntryKindTransfer,
		Amount:                req.Amount.Neg(),
		Description:           transferDescription("Transfer to "+recipient.DisplayName+" ("+recipient.AccountNumber+")", req.Description),
		Status:                domain.EntryStatusPending,
		CounterpartyAccountID: &recipientID,
		CreatedAt:             time.Now().UTC(),
	}

	verdict, err := s.fraud.Check(ctx, domain.FraudCheckRequest{History: history, Candidate: candidate})
	if err != nil {
		s.logger.Error("Fraud gate unavailable", "sender_account_id", sender.ID, "error", err)
		return nil, errors.ErrFraudGateUnavailable.WithDetails(err.Error())
	}
	if verdict.IsFraudulent {
		return s.recordFlagged(ctx, sender, recipient, req, verdict.Explanation)
	}

	var result *OperationResult
	err = s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		lockedSender, lockedRecipient, err := lockPair(ctx, repos.Accounts(), sender.ID, recipient.ID)
		if err != nil {
			return err
		}

		if replay, err := s.replay(ctx, repos, sender.ID, req.IdempotencyKey, domain.EntryKindTransfer, lockedSender); err != nil || replay != nil {
			result = replay
			return err
		}

		if lockedSender.CurrencyCode != sender.CurrencyCode || lockedRecipient.CurrencyCode != sender.CurrencyCode {
			return errors.ErrConcurrentModification
		}
		if lockedSender.Balance.LessThan(req.Amount) {
			s.logger.Warn("Insufficient funds for transfer", "sender_account_id", sender.ID, "balance", lockedSender.Balance, "amount", req.Amount)
			return errors.ErrInsufficientFunds.WithDetails(fmt.Sprintf("balance %s is below %s", lockedSender.Balance.StringFixed(domain.MinorUnits(sender.CurrencyCode)), req.Amount))
		}

		newSenderBalance := lockedSender.Balance.Sub(req.Amount)
		newRecipientBalance := lockedRecipient.Balance.Add(req.Amount)

		if err := repos.Accounts().UpdateAccountBalance(ctx, sender.ID, newSenderBalance); err != nil {
			return err
		}
		if err := repos.Accounts().UpdateAccountBalance(ctx, recipient.ID, newRecipientBalance); err != nil {
			return err
		}

		senderID := sender.ID
		debit := &domain.LedgerEntry{
			ID:                    uuid.New(),
			OwnerAccountID:        sender.ID,
			Kind:                  domain.EntryKindTransfer,
			Amount:                req.Amount.Neg(),
			Description:           candidate.Description,
			Status:                domain.EntryStatusCompleted,
			CounterpartyAccountID: &recipientID,
			IdempotencyKey:        req.IdempotencyKey,
		}
		credit := &domain.LedgerEntry{
			ID:                    uuid.New(),
			OwnerAccountID:        recipient.ID,
			Kind:                  domain.EntryKindTransfer,
			Amount:                req.Amount,
			Description:           transferDescription("Transfer from "+lockedSender.DisplayName, req.Description),
			Status:                domain.EntryStatusCompleted,
			CounterpartyAccountID: &senderID,
		}
		if err := repos.Entries().CreateEntry(ctx, debit); err != nil {
			return err
		}
		if err := repos.Entries().CreateEntry(ctx, credit); err != nil {
			return err
		}

		result = &OperationResult{
			EntryID:  debit.ID,
			Status:   domain.EntryStatusCompleted,
			Balance:  newSenderBalance,
			Currency: lockedSender.CurrencyCode,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Transfer failed", "sender_account_id", sender.ID, "recipient_account_id", recipient.ID, "error", err)
		return nil, errors.From(err)
	}

	s.logger.Info("Transfer completed successfully", "entry_id", result.EntryID, "replayed", result.Replayed)
	return result, nil
}

// recordFlagged keeps a flagged entry on the sender's ledger as evidence. No
// balance changes.
func (s *LedgerService) recordFlagged(
	ctx context.Context,
	sender, recipient *domain.Account,
	req TransferRequest,
	explanation string,
) (*OperationResult, error) {
	s.logger.Warn("Transfer flagged by fraud gate",
		"sender_account_id", sender.ID,
		"recipient_account_id", recipient.ID,
		"amount", req.Amount,
		"explanation", explanation)

	var flaggedID uuid.UUID
	var result *OperationResult
	err := s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		lockedSender, err := repos.Accounts().GetAccountForUpdate(ctx, sender.ID)
		if err != nil {
			return err
		}
		if replay, err := s.replay(ctx, repos, sender.ID, req.IdempotencyKey, domain.EntryKindTransfer, lockedSender); err != nil || replay != nil {
			result = replay
			return err
		}

		recipientID := recipient.ID
		note := explanation
		entry := &domain.LedgerEntry{
			ID:                    uuid.New(),
			OwnerAccountID:        sender.ID,
			Kind:                  domain.EntryKindTransfer,
			Amount:                req.Amount.Neg(),
			Description:           "Transfer to " + recipient.AccountNumber + " (Flagged)",
			Status:                domain.EntryStatusFlagged,
			CounterpartyAccountID: &recipientID,
			Annotation:            &note,
			IdempotencyKey:        req.IdempotencyKey,
		}
		if err := repos.Entries().CreateEntry(ctx, entry); err != nil {
			return err
		}
		flaggedID = entry.ID
		return nil
	})
	if err != nil {
		return nil, errors.From(err)
	}
	if result != nil {
		return result, nil
	}
	return nil, errors.ErrFraudFlagged.WithDetails(explanation).WithEntry(flaggedID)
}

// replayTransfer resolves a repeated transfer request under the sender's lock.
func (s *LedgerService) replayTransfer(ctx context.Context, senderID uuid.UUID, key *uuid.UUID) (*OperationResult, error) {
	var result *OperationResult
	err := s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		locked, err := repos.Accounts().GetAccountForUpdate(ctx, senderID)
		if err != nil {
			return err
		}
		result, err = s.replay(ctx, repos, senderID, key, domain.EntryKindTransfer, locked)
		return err
	})
	if err != nil {
		return nil, errors.From(err)
	}
	return result, nil
}

// lockPair locks two accounts in ascending id order so that opposite
// transfers between the same pair cannot deadlock.
func lockPair(ctx context.Context, accounts domain.AccountRepository, a, b uuid.UUID) (*domain.Account, *domain.Account, error) {
	first, second := a, b
	if bytes.Compare(a[:], b[:]) > 0 {
		first, second = b, a
	}

	lockedFirst, err := accounts.GetAccountForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	lockedSecond, err := accounts.GetAccountForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}

	if first == a {
		return lockedFirst, lockedSecond, nil
	}
	return lockedSecond, lockedFirst, nil
}

func transferDescription(base, note string) string {
	if note == "" {
		return base
	}
	return base + ": " + note
}

// Quote previews a conversion without changing anything.
func (s *LedgerService) Quote(ctx context.Context, accountID uuid.UUID, targetCurrency string) (*Quote, error) {
	target := domain.NormalizeCurrency(targetCurrency)
	if !domain.IsSupportedCurrency(target) {
		return nil, errors.ErrValidation.WithDetails("unsupported currency " + targetCurrency)
	}

	account, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		return nil, errors.From(err)
	}

	rate, err := oracle.Rate(ctx, s.rates, account.CurrencyCode, target)
	if err != nil {
		s.logger.Error("Exchange rate lookup failed", "from", account.CurrencyCode, "to", target, "error", err)
		return nil, errors.ErrExchangeRateUnavailable.WithDetails(err.Error())
	}

	return &Quote{
		From:             account.CurrencyCode,
		To:               target,
		Rate:             rate,
		Balance:          account.Balance,
		ConvertedBalance: domain.RoundToMinorUnit(account.Balance.Mul(rate), target),
	}, nil
}

// Convert re-denominates the whole balance. The rate is fetched before the
// transaction opens; if the account's currency changed in between, the
// operation aborts rather than apply a stale rate.
func (s *LedgerService) Convert(ctx context.Context, req ConvertRequest) (*OperationResult, error) {
	s.logger.Info("Processing conversion", "account_id", req.AccountID, "target_currency", req.TargetCurrency)

	target := domain.NormalizeCurrency(req.TargetCurrency)
	if !domain.IsSupportedCurrency(target) {
		return nil, errors.ErrValidation.WithDetails("unsupported currency " + req.TargetCurrency)
	}

	account, err := s.store.Accounts().GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, errors.From(err)
	}
	from := account.CurrencyCode
	if from == target {
		return nil, errors.ErrNoOpConversion
	}

	rate, err := oracle.Rate(ctx, s.rates, from, target)
	if err != nil {
		s.logger.Error("Exchange rate lookup failed", "from", from, "to", target, "error", err)
		return nil, errors.ErrExchangeRateUnavailable.WithDetails(err.Error())
	}

	var result *OperationResult
	err = s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		locked, err := repos.Accounts().GetAccountForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if locked.CurrencyCode != from {
			return errors.ErrConcurrentModification
		}

		pending, err := repos.Entries().CountPendingEntries(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return errors.ErrPendingEntries
		}

		newBalance := domain.RoundToMinorUnit(locked.Balance.Mul(rate), target)
		if err := repos.Accounts().UpdateAccountCurrency(ctx, req.AccountID, newBalance, target); err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			ID:             uuid.New(),
			OwnerAccountID: req.AccountID,
			Kind:           domain.EntryKindConversion,
			Amount:         decimal.Zero,
			Description: fmt.Sprintf("Converted %s %s to %s %s at rate %s",
				locked.Balance.StringFixed(domain.MinorUnits(from)), from,
				newBalance.StringFixed(domain.MinorUnits(target)), target,
				rate.String()),
			Status: domain.EntryStatusCompleted,
		}
		if err := repos.Entries().CreateEntry(ctx, entry); err != nil {
			return err
		}

		result = &OperationResult{
			EntryID:  entry.ID,
			Status:   entry.Status,
			Balance:  newBalance,
			Currency: target,
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Conversion failed", "account_id", req.AccountID, "error", err)
		return nil, errors.From(err)
	}

	s.logger.Info("Conversion completed", "account_id", req.AccountID, "from", from, "to", target, "rate", rate)
	return result, nil
}
