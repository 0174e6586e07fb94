package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

const (
	uniqueViolation = "23505"

	entryColumns = `id, owner_account_id, kind, amount, description, status, counterparty_account_id, proof_reference, annotation, idempotency_key, created_at, updated_at`
)

type entryRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewEntryRepository(db SQLExecutor, logger *slog.Logger) domain.EntryRepository {
	return &entryRepository{
		db:     db,
		logger: logger,
	}
}

func (r *entryRepository) CreateEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries
		(id, owner_account_id, kind, amount, description, status, counterparty_account_id, proof_reference, annotation, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerAccountID,
		string(entry.Kind),
		entry.Amount.String(),
		entry.Description,
		string(entry.Status),
		nullableUUID(entry.CounterpartyAccountID),
		nullableString(entry.ProofReference),
		nullableString(entry.Annotation),
		nullableUUID(entry.IdempotencyKey),
		now,
		now,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			r.logger.Warn("Duplicate idempotency key", "owner_account_id", entry.OwnerAccountID, "idempotency_key", entry.IdempotencyKey)
			return errors.ErrDuplicateEntry
		}
		r.logger.Error("Failed to create ledger entry",
			"owner_account_id", entry.OwnerAccountID,
			"kind", entry.Kind,
			"amount", entry.Amount,
			"error", err)
		return errors.ErrStoreFailure.WithDetails(err.Error())
	}

	entry.CreatedAt = now
	entry.UpdatedAt = now
	r.logger.Info("Ledger entry created", "entry_id", entry.ID, "kind", entry.Kind, "status", entry.Status)
	return nil
}

func (r *entryRepository) GetEntry(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *entryRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *entryRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.LedgerEntry, error) {
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Warn("Ledger entry not found", "entry_id", id)
			return nil, errors.ErrEntryNotFound
		}
		r.logger.Error("Failed to get ledger entry", "entry_id", id, "error", err)
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	return entry, nil
}

func (r *entryRepository) GetEntryByIdempotencyKey(ctx context.Context, ownerID, key uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE owner_account_id = $1 AND idempotency_key = $2`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, ownerID, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to get ledger entry by idempotency key", "owner_account_id", ownerID, "error", err)
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	return entry, nil
}

func (r *entryRepository) UpdateEntryStatus(ctx context.Context, id uuid.UUID, status domain.EntryStatus, annotation *string) error {
	query := `
		UPDATE ledger_entries
		SET status = $1, annotation = COALESCE($2, annotation), updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, string(status), nullableString(annotation), time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update ledger entry status", "entry_id", id, "error", err)
		return errors.ErrStoreFailure.WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.ErrStoreFailure.WithDetails(err.Error())
	}
	if rowsAffected == 0 {
		return errors.ErrEntryNotFound
	}

	r.logger.Info("Ledger entry status updated", "entry_id", id, "status", status)
	return nil
}

func (r *entryRepository) ListRecentEntries(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE owner_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return r.list(ctx, query, ownerID, limit)
}

func (r *entryRepository) ListEntries(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]domain.LedgerEntry, int, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	filter := `owner_account_id = $1 AND (description ILIKE $2 OR kind ILIKE $2)`

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE `+filter, ownerID, pattern).Scan(&total)
	if err != nil {
		r.logger.Error("Failed to count ledger entries", "owner_account_id", ownerID, "error", err)
		return nil, 0, errors.ErrStoreFailure.WithDetails(err.Error())
	}

	entries, err := r.list(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE `+filter+`
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, ownerID, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *entryRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "error", err)
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			r.logger.Error("Failed to scan ledger entry", "error", err)
			return nil, errors.ErrStoreFailure.WithDetails(err.Error())
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	return entries, nil
}

func (r *entryRepository) ListPendingEntries(ctx context.Context, kind domain.EntryKind) ([]domain.PendingEntry, error) {
	query := `
		SELECT e.id, e.owner_account_id, e.kind, e.amount, e.description, e.status, e.counterparty_account_id,
		       e.proof_reference, e.annotation, e.idempotency_key, e.created_at, e.updated_at,
		       a.display_name, a.account_number, a.currency_code
		FROM ledger_entries e
		JOIN accounts a ON a.id = e.owner_account_id
		WHERE e.status = $1 AND e.kind = $2
		ORDER BY e.created_at ASC, e.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, string(domain.EntryStatusPending), string(kind))
	if err != nil {
		r.logger.Error("Failed to list pending entries", "kind", kind, "error", err)
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	defer rows.Close()

	pending := []domain.PendingEntry{}
	for rows.Next() {
		var p domain.PendingEntry
		entry, err := scanEntry(rows, &p.OwnerDisplayName, &p.OwnerAccountNumber, &p.OwnerCurrency)
		if err != nil {
			r.logger.Error("Failed to scan pending entry", "error", err)
			return nil, errors.ErrStoreFailure.WithDetails(err.Error())
		}
		p.LedgerEntry = *entry
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	return pending, nil
}

func (r *entryRepository) CountPendingEntries(ctx context.Context, ownerID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM ledger_entries WHERE owner_account_id = $1 AND status = $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, ownerID, string(domain.EntryStatusPending)).Scan(&count); err != nil {
		r.logger.Error("Failed to count pending entries", "owner_account_id", ownerID, "error", err)
		return 0, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	return count, nil
}

func (r *entryRepository) SumCompleted(ctx context.Context, ownerID uuid.UUID) (*domain.EntryTotals, error) {
	query := `
		SELECT COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0),
		       COALESCE(SUM(-amount) FILTER (WHERE amount < 0), 0)
		FROM ledger_entries
		WHERE owner_account_id = $1 AND status = $2
		  AND created_at >= COALESCE(
		      (SELECT MAX(created_at) FROM ledger_entries
		       WHERE owner_account_id = $1 AND status = $2 AND kind = $3),
		      '-infinity'::timestamptz)
	`

	var incomeStr, expensesStr string
	err := r.db.QueryRowContext(ctx, query, ownerID, string(domain.EntryStatusCompleted), string(domain.EntryKindConversion)).
		Scan(&incomeStr, &expensesStr)
	if err != nil {
		r.logger.Error("Failed to sum ledger entries", "owner_account_id", ownerID, "error", err)
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}

	income, err := decimal.NewFromString(incomeStr)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	expenses, err := decimal.NewFromString(expensesStr)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithDetails(err.Error())
	}
	return &domain.EntryTotals{Income: income, Expenses: expenses}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry reads the entryColumns in order, followed by any extra columns.
func scanEntry(row rowScanner, extra ...interface{}) (*domain.LedgerEntry, error) {
	var (
		entry          domain.LedgerEntry
		kind, status   string
		amountStr      string
		counterparty   uuid.NullUUID
		proof          sql.NullString
		annotation     sql.NullString
		idempotencyKey uuid.NullUUID
	)

	dest := []interface{}{
		&entry.ID,
		&entry.OwnerAccountID,
		&kind,
		&amountStr,
		&entry.Description,
		&status,
		&counterparty,
		&proof,
		&annotation,
		&idempotencyKey,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, err
	}

	entry.Kind = domain.EntryKind(kind)
	entry.Status = domain.EntryStatus(status)
	entry.Amount = amount
	if counterparty.Valid {
		id := counterparty.UUID
		entry.CounterpartyAccountID = &id
	}
	if proof.Valid {
		entry.ProofReference = &proof.String
	}
	if annotation.Valid {
		entry.Annotation = &annotation.String
	}
	if idempotencyKey.Valid {
		key := idempotencyKey.UUID
		entry.IdempotencyKey = &key
	}
	return &entry, nil
}

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
