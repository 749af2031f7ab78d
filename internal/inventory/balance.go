package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// applyBalanceDelta computes the next state of a balance row. exists reports
// whether current was read from the store; a missing row opens at delta.
func applyBalanceDelta(current Balance, exists bool, delta, unitCost decimal.Decimal, now time.Time) (Balance, error) {
	next := current
	next.UpdatedAt = now
	if !exists {
		if delta.IsNegative() {
			return Balance{}, fmt.Errorf("%w: product %d has no stock in warehouse %d", ErrInsufficientStock, current.ProductID, current.WarehouseID)
		}
		next.OnHand = delta
		next.Reserved = decimal.Zero
		next.AvgCost = decimal.Zero
		if delta.IsPositive() {
			next.AvgCost = unitCost
		}
		next.Available = next.OnHand
		return next, nil
	}

	qty := current.OnHand.Add(delta)
	if qty.IsNegative() {
		return Balance{}, fmt.Errorf("%w: product %d warehouse %d on hand %s, requested %s",
			ErrInsufficientStock, current.ProductID, current.WarehouseID, current.OnHand, delta.Neg())
	}
	if delta.IsPositive() && unitCost.IsPositive() {
		next.AvgCost = NextAverageCost(current.OnHand, current.AvgCost, delta, unitCost)
	}
	next.OnHand = qty
	next.Available = qty.Sub(current.Reserved)
	return next, nil
}
