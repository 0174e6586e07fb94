package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/repository/memory"
)

type MockFraudGate struct {
	mock.Mock
}

func (m *MockFraudGate) Check(ctx context.Context, req domain.FraudCheckRequest) (*domain.FraudVerdict, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*domain.FraudVerdict), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockRateOracle struct {
	mock.Mock
}

func (m *MockRateOracle) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedAccount(t *testing.T, store *memory.Store, name, balance, currency string) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:            uuid.New(),
		AccountNumber: uuid.NewString()[:10],
		Email:         uuid.NewString() + "@example.com",
		DisplayName:   name,
		Balance:       decimal.RequireFromString(balance),
		CurrencyCode:  currency,
	}
	require.NoError(t, store.Accounts().CreateAccount(context.Background(), account))
	return account
}

func balanceOf(t *testing.T, store *memory.Store, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := store.Accounts().GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func entriesOf(t *testing.T, store *memory.Store, id uuid.UUID) []domain.LedgerEntry {
	t.Helper()
	entries, err := store.Entries().ListRecentEntries(context.Background(), id, 1000)
	require.NoError(t, err)
	return entries
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func keyPtr() *uuid.UUID {
	k := uuid.New()
	return &k
}
