package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

type entryRepository struct {
	*view
}

func (r *entryRepository) CreateEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	return r.write(ctx, "CreateEntry", func(d *dataset) error {
		if _, ok := d.accounts[entry.OwnerAccountID]; !ok {
			return errors.ErrStoreFailure.WithDetails("owner account does not exist")
		}
		if entry.CounterpartyAccountID != nil {
			if _, ok := d.accounts[*entry.CounterpartyAccountID]; !ok {
				return errors.ErrStoreFailure.WithDetails("counterparty account does not exist")
			}
		}
		if _, exists := d.entryPos[entry.ID]; exists {
			return errors.ErrDuplicateEntry
		}
		if entry.IdempotencyKey != nil {
			if findByKey(d, entry.OwnerAccountID, *entry.IdempotencyKey) != nil {
				return errors.ErrDuplicateEntry
			}
		}

		now := time.Now().UTC()
		entry.CreatedAt = now
		entry.UpdatedAt = now
		d.entryPos[entry.ID] = len(d.entries)
		d.entries = append(d.entries, *entry)
		return nil
	})
}

func (r *entryRepository) GetEntry(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	var found *domain.LedgerEntry
	err := r.read(ctx, func(d *dataset) error {
		pos, ok := d.entryPos[id]
		if !ok {
			return errors.ErrEntryNotFound
		}
		e := d.entries[pos]
		found = &e
		return nil
	})
	return found, err
}

func (r *entryRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	return r.GetEntry(ctx, id)
}

func (r *entryRepository) GetEntryByIdempotencyKey(ctx context.Context, ownerID, key uuid.UUID) (*domain.LedgerEntry, error) {
	var found *domain.LedgerEntry
	err := r.read(ctx, func(d *dataset) error {
		found = findByKey(d, ownerID, key)
		return nil
	})
	return found, err
}

func findByKey(d *dataset, ownerID, key uuid.UUID) *domain.LedgerEntry {
	for i := range d.entries {
		e := d.entries[i]
		if e.OwnerAccountID == ownerID && e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return &e
		}
	}
	return nil
}

func (r *entryRepository) UpdateEntryStatus(ctx context.Context, id uuid.UUID, status domain.EntryStatus, annotation *string) error {
	return r.write(ctx, "UpdateEntryStatus", func(d *dataset) error {
		pos, ok := d.entryPos[id]
		if !ok {
			return errors.ErrEntryNotFound
		}
		e := d.entries[pos]
		e.Status = status
		if annotation != nil {
			note := *annotation
			e.Annotation = &note
		}
		e.UpdatedAt = time.Now().UTC()
		d.entries[pos] = e
		return nil
	})
}

func (r *entryRepository) ListRecentEntries(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	entries, _, err := r.ListEntries(ctx, ownerID, "", limit, 0)
	return entries, err
}

func (r *entryRepository) ListEntries(ctx context.Context, ownerID uuid.UUID, query string, limit, offset int) ([]domain.LedgerEntry, int, error) {
	needle := strings.ToLower(strings.TrimSpace(query))

	var matched []domain.LedgerEntry
	err := r.read(ctx, func(d *dataset) error {
		// newest first
		for i := len(d.entries) - 1; i >= 0; i-- {
			e := d.entries[i]
			if e.OwnerAccountID != ownerID {
				continue
			}
			if needle != "" &&
				!strings.Contains(strings.ToLower(e.Description), needle) &&
				!strings.Contains(string(e.Kind), needle) {
				continue
			}
			matched = append(matched, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.LedgerEntry{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (r *entryRepository) ListPendingEntries(ctx context.Context, kind domain.EntryKind) ([]domain.PendingEntry, error) {
	pending := []domain.PendingEntry{}
	err := r.read(ctx, func(d *dataset) error {
		for _, e := range d.entries {
			if e.Status != domain.EntryStatusPending || e.Kind != kind {
				continue
			}
			owner := d.accounts[e.OwnerAccountID]
			pending = append(pending, domain.PendingEntry{
				LedgerEntry:        e,
				OwnerDisplayName:   owner.DisplayName,
				OwnerAccountNumber: owner.AccountNumber,
				OwnerCurrency:      owner.CurrencyCode,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *entryRepository) CountPendingEntries(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var count int
	err := r.read(ctx, func(d *dataset) error {
		for _, e := range d.entries {
			if e.OwnerAccountID == ownerID && e.Status == domain.EntryStatusPending {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *entryRepository) SumCompleted(ctx context.Context, ownerID uuid.UUID) (*domain.EntryTotals, error) {
	totals := &domain.EntryTotals{Income: decimal.Zero, Expenses: decimal.Zero}
	err := r.read(ctx, func(d *dataset) error {
		for _, e := range d.entries {
			if e.OwnerAccountID != ownerID || e.Status != domain.EntryStatusCompleted {
				continue
			}
			if e.Kind == domain.EntryKindConversion {
				totals.Income, totals.Expenses = decimal.Zero, decimal.Zero
				continue
			}
			if e.Amount.IsPositive() {
				totals.Income = totals.Income.Add(e.Amount)
			} else {
				totals.Expenses = totals.Expenses.Sub(e.Amount)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}
