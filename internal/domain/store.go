package domain

import "context"

// Repositories groups the stores an operation reads and writes.
type Repositories interface {
	Accounts() AccountRepository
	Entries() EntryRepository
}

// UnitOfWork runs fn inside one atomic transaction. The Repositories handed
// to fn share that transaction; fn's error (or a panic) rolls everything back.
type UnitOfWork interface {
	Repositories
	WithTransaction(ctx context.Context, fn func(repos Repositories) error) error
}
