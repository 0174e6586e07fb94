package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type FraudCheckRequest struct {
	History   []LedgerEntry
	Candidate LedgerEntry
}

type FraudVerdict struct {
	IsFraudulent bool
	Explanation  string
}

// FraudGate decides whether a candidate transfer looks fraudulent given the
// sender's recent history. Implementations may be slow; callers must not hold
// a transaction open while waiting.
type FraudGate interface {
	Check(ctx context.Context, req FraudCheckRequest) (*FraudVerdict, error)
}

// RateOracle returns how many units of `to` one unit of `from` buys.
type RateOracle interface {
	GetRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}
