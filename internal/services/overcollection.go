package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OverCollectionError is returned when a proposed payment would push
// collection past demand and no justification was supplied. The remaining
// balances are the figures the store saw at check time.
type OverCollectionError struct {
	RemainingArrear  decimal.Decimal
	RemainingCurrent decimal.Decimal
}

func (e *OverCollectionError) Error() string {
	return fmt.Sprintf(
		"collection would exceed demand: justification required (remaining arrears %s, remaining current %s)",
		e.RemainingArrear.StringFixed(2), e.RemainingCurrent.StringFixed(2))
}

// OverCollectionGuard is a read-only precondition check. The arithmetic runs
// server-side against current stored state; this side only decides whether
// the supplied justification is acceptable. It is advisory: two concurrent
// saves can both pass a stale check, correctness is carried by the atomic
// delta update that follows, so the guard runs immediately before it.
type OverCollectionGuard struct {
	Ledger LedgerStore
}

func NewOverCollectionGuard(ledger LedgerStore) *OverCollectionGuard {
	return &OverCollectionGuard{Ledger: ledger}
}

// Check passes when the proposed delta stays within demand, or when it does
// not but a non-empty justification accompanies it.
func (g *OverCollectionGuard) Check(ctx context.Context, shardID, gazetteNo, fiscalYear string, deltaArrear, deltaCurrent decimal.Decimal, reason string) error {
	check, err := g.Ledger.CheckOverCollection(ctx, shardID, gazetteNo, fiscalYear, deltaArrear, deltaCurrent)
	if err != nil {
		return fmt.Errorf("over-collection check failed: %w", err)
	}

	if check.RequiresReason && strings.TrimSpace(reason) == "" {
		return &OverCollectionError{
			RemainingArrear:  check.RemainingArrear,
			RemainingCurrent: check.RemainingCurrent,
		}
	}
	return nil
}
