package inventory

import "github.com/shopspring/decimal"

// NextAverageCost blends an incoming receipt into the moving-average cost:
//
//	(curQty*curAvg + inQty*inCost) / (curQty + inQty)
//
// When the combined quantity is not positive the current average is returned.
func NextAverageCost(curQty, curAvg, inQty, inCost decimal.Decimal) decimal.Decimal {
	total := curQty.Add(inQty)
	if !total.IsPositive() {
		return curAvg
	}
	value := curQty.Mul(curAvg).Add(inQty.Mul(inCost))
	return value.Div(total).Round(costScale)
}
