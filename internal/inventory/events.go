package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementPostedEvent describes one committed ledger leg.
type MovementPostedEvent struct {
	LedgerID    int64
	TransferID  string
	ProductID   int64
	WarehouseID int64
	LotID       *int64
	Type        TransactionType
	Delta       decimal.Decimal
	UnitCost    decimal.Decimal
	OnHand      decimal.Decimal
	AvgCost     decimal.Decimal
	PostedAt    time.Time
}
