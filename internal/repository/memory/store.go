// Package memory is an in-process implementation of the ledger stores. A
// single mutex serialises every unit of work, and a transaction writes to a
// private copy of the dataset that replaces the live one only on commit.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

// WriteHook is called before every write with the operation name. A non-nil
// error aborts the write as a store failure.
type WriteHook func(op string) error

type dataset struct {
	accounts map[uuid.UUID]domain.Account
	entries  []domain.LedgerEntry
	entryPos map[uuid.UUID]int
}

func newDataset() *dataset {
	return &dataset{
		accounts: make(map[uuid.UUID]domain.Account),
		entryPos: make(map[uuid.UUID]int),
	}
}

func (d *dataset) clone() *dataset {
	cp := &dataset{
		accounts: make(map[uuid.UUID]domain.Account, len(d.accounts)),
		entries:  make([]domain.LedgerEntry, len(d.entries)),
		entryPos: make(map[uuid.UUID]int, len(d.entryPos)),
	}
	for id, a := range d.accounts {
		cp.accounts[id] = a
	}
	copy(cp.entries, d.entries)
	for id, pos := range d.entryPos {
		cp.entryPos[id] = pos
	}
	return cp
}

type Store struct {
	mu     sync.Mutex
	data   *dataset
	hook   WriteHook
	logger *slog.Logger

	// tx is non-nil for the Store handed to a WithTransaction callback.
	tx *dataset
}

var _ domain.UnitOfWork = (*Store)(nil)

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		data:   newDataset(),
		logger: logger,
	}
}

// SetWriteHook installs a hook used to simulate store failures.
func (s *Store) SetWriteHook(hook WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *Store) Accounts() domain.AccountRepository {
	return &accountRepository{view: s.view()}
}

func (s *Store) Entries() domain.EntryRepository {
	return &entryRepository{view: s.view()}
}

func (s *Store) view() *view {
	return &view{store: s, tx: s.tx}
}

// WithTransaction holds the store mutex for the whole of fn. fn works on a
// copy of the data; the copy becomes the live dataset only if fn succeeds
// and ctx is still alive.
func (s *Store) WithTransaction(ctx context.Context, fn func(repos domain.Repositories) error) error {
	if s.tx != nil {
		return errors.ErrCannotBeginTransaction
	}
	if err := ctx.Err(); err != nil {
		return errors.From(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.data.clone()
	txStore := &Store{
		data:   staged,
		hook:   s.hook,
		logger: s.logger,
		tx:     staged,
	}

	if err := fn(txStore); err != nil {
		s.logger.Debug("Rolling back in-memory transaction", "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.logger.Warn("Context ended before commit, rolling back", "error", err)
		return errors.From(err)
	}

	s.data = staged
	return nil
}

// view routes repository calls either to the transaction's staged dataset or,
// outside a transaction, to the live dataset under the store mutex.
type view struct {
	store *Store
	tx    *dataset
}

func (v *view) read(ctx context.Context, fn func(d *dataset) error) error {
	if err := ctx.Err(); err != nil {
		return errors.From(err)
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data)
}

func (v *view) write(ctx context.Context, op string, fn func(d *dataset) error) error {
	return v.read(ctx, func(d *dataset) error {
		if v.store.hook != nil {
			if err := v.store.hook(op); err != nil {
				v.store.logger.Error("Simulated store failure", "op", op, "error", err)
				return errors.ErrStoreFailure.WithDetails(err.Error())
			}
		}
		return fn(d)
	})
}
