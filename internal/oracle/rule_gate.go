package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
)

const (
	minHistoryForAverage = 3
	averageMultiplier    = 5
)

// RuleFraudGate is a local stand-in for the remote fraud service. It flags a
// transfer larger than MaxAmount, or larger than five times the average size
// of the sender's recent entries once there are at least three of them.
type RuleFraudGate struct {
	MaxAmount decimal.Decimal
}

var _ domain.FraudGate = (*RuleFraudGate)(nil)

func NewRuleFraudGate(maxAmount decimal.Decimal) *RuleFraudGate {
	return &RuleFraudGate{MaxAmount: maxAmount}
}

func (g *RuleFraudGate) Check(ctx context.Context, req domain.FraudCheckRequest) (*domain.FraudVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	amount := req.Candidate.Amount.Abs()
	if g.MaxAmount.IsPositive() && amount.GreaterThan(g.MaxAmount) {
		return &domain.FraudVerdict{
			IsFraudulent: true,
			Explanation:  fmt.Sprintf("Amount %s exceeds the single transfer limit of %s", amount.StringFixed(2), g.MaxAmount.StringFixed(2)),
		}, nil
	}

	var sum decimal.Decimal
	var counted int64
	for _, e := range req.History {
		if e.Amount.IsZero() {
			continue
		}
		sum = sum.Add(e.Amount.Abs())
		counted++
	}
	if counted >= minHistoryForAverage {
		avg := sum.Div(decimal.NewFromInt(counted))
		if amount.GreaterThan(avg.Mul(decimal.NewFromInt(averageMultiplier))) {
			return &domain.FraudVerdict{
				IsFraudulent: true,
				Explanation:  fmt.Sprintf("Amount %s is far above the recent average of %s", amount.StringFixed(2), avg.StringFixed(2)),
			}, nil
		}
	}

	return &domain.FraudVerdict{IsFraudulent: false}, nil
}
