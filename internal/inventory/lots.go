package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// lotDates carries optional lot metadata propagated on receipts.
type lotDates struct {
	Expiry      *time.Time
	Manufacture *time.Time
	Received    *time.Time
}

// lotRef identifies the lot a movement targets.
type lotRef struct {
	ID     *int64
	Number string
}

// resolveLot locates the lot a movement refers to. A missing lot is reported
// as (Lot{}, false, nil) so callers decide between create and reject.
func resolveLot(ctx context.Context, tx TxRepository, productID, warehouseID int64, ref lotRef) (Lot, bool, error) {
	var (
		lot Lot
		err error
	)
	if ref.ID != nil {
		lot, err = tx.GetLotByIDForUpdate(ctx, *ref.ID)
	} else {
		lot, err = tx.GetLotByNumberForUpdate(ctx, productID, warehouseID, strings.TrimSpace(ref.Number))
	}
	if err != nil {
		if errors.Is(err, ErrLotRowNotFound) {
			return Lot{}, false, nil
		}
		return Lot{}, false, err
	}
	if lot.ProductID != productID || lot.WarehouseID != warehouseID {
		return Lot{}, false, nil
	}
	return lot, true, nil
}

// applyLotDelta creates or mutates a lot with a signed delta and persists it.
func applyLotDelta(ctx context.Context, tx TxRepository, productID, warehouseID int64, ref lotRef, delta decimal.Decimal, dates lotDates, now time.Time) (Lot, error) {
	lot, found, err := resolveLot(ctx, tx, productID, warehouseID, ref)
	if err != nil {
		return Lot{}, err
	}
	if found {
		return mutateLot(ctx, tx, lot, delta, dates, now)
	}
	if !delta.IsPositive() {
		return Lot{}, fmt.Errorf("%w: %s", ErrLotNotFound, describeLotRef(ref))
	}
	number := strings.TrimSpace(ref.Number)
	if number == "" {
		number = generateLotNumber()
	}
	lot = Lot{
		ProductID:         productID,
		WarehouseID:       warehouseID,
		LotNumber:         number,
		QuantityAvailable: delta,
		ExpiryDate:        dates.Expiry,
		ManufactureDate:   dates.Manufacture,
		ReceivedDate:      dates.Received,
		Status:            LotStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	id, err := tx.InsertLot(ctx, lot)
	if err != nil {
		return Lot{}, err
	}
	lot.ID = id
	return lot, nil
}

// mutateLot applies delta to an existing, locked lot.
func mutateLot(ctx context.Context, tx TxRepository, lot Lot, delta decimal.Decimal, dates lotDates, now time.Time) (Lot, error) {
	next := lot.QuantityAvailable.Add(delta)
	if next.IsNegative() {
		return Lot{}, fmt.Errorf("%w: lot %s holds %s, requested %s",
			ErrInsufficientLotQuantity, lot.LotNumber, lot.QuantityAvailable, delta.Neg())
	}
	lot.QuantityAvailable = next
	lot.Status = lotStatusFor(next)
	lot.ExpiryDate = firstDate(lot.ExpiryDate, dates.Expiry)
	lot.ManufactureDate = firstDate(lot.ManufactureDate, dates.Manufacture)
	lot.ReceivedDate = firstDate(lot.ReceivedDate, dates.Received)
	lot.UpdatedAt = now
	if err := tx.UpdateLot(ctx, lot); err != nil {
		return Lot{}, err
	}
	return lot, nil
}

func lotStatusFor(qty decimal.Decimal) LotStatus {
	if qty.IsZero() {
		return LotStatusExhausted
	}
	return LotStatusActive
}

func firstDate(existing, incoming *time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	return incoming
}

func describeLotRef(ref lotRef) string {
	if ref.ID != nil {
		return fmt.Sprintf("lot id %d", *ref.ID)
	}
	return fmt.Sprintf("lot %q", ref.Number)
}
