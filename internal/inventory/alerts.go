package inventory

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// LowStockAlerts lists pairs whose on-hand sits at or below a positive reorder point.
func (s *Service) LowStockAlerts(ctx context.Context) ([]LowStockAlert, error) {
	var out []LowStockAlert
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		var err error
		out, err = lowStockFrom(ctx, r)
		return err
	})
	return out, err
}

// ExpiringLots lists stocked lots expiring within horizonDays of today.
// A non-positive horizon falls back to the configured default.
func (s *Service) ExpiringLots(ctx context.Context, horizonDays int) ([]ExpiringLot, error) {
	if horizonDays <= 0 {
		horizonDays = s.horizonDays
	}
	today := dateOf(s.clock())
	var out []ExpiringLot
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		var err error
		out, err = expiringFrom(ctx, r, today, horizonDays)
		return err
	})
	return out, err
}

// ReorderAlerts returns both alert families read from one snapshot.
func (s *Service) ReorderAlerts(ctx context.Context) (ReorderAlerts, error) {
	today := dateOf(s.clock())
	key, err := s.cache.BuildKey(ctx, "alerts", today.Format(time.DateOnly), strconv.Itoa(s.horizonDays))
	if err != nil {
		return ReorderAlerts{}, err
	}
	var alerts ReorderAlerts
	err = s.cache.FetchJSON(ctx, key, &alerts, func(ctx context.Context) (any, error) {
		var res ReorderAlerts
		err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
			var err error
			if res.LowStock, err = lowStockFrom(ctx, r); err != nil {
				return err
			}
			res.ExpiringLots, err = expiringFrom(ctx, r, today, s.horizonDays)
			return err
		})
		return res, err
	})
	if alerts.LowStock == nil {
		alerts.LowStock = []LowStockAlert{}
	}
	if alerts.ExpiringLots == nil {
		alerts.ExpiringLots = []ExpiringLot{}
	}
	return alerts, err
}

func lowStockFrom(ctx context.Context, r SnapshotReader) ([]LowStockAlert, error) {
	levels, err := r.ListReorderLevels(ctx, StockFilter{})
	if err != nil {
		return nil, err
	}
	balances, err := r.ListBalances(ctx, StockFilter{})
	if err != nil {
		return nil, err
	}
	onHand := indexOnHand(balances)
	out := make([]LowStockAlert, 0)
	for _, lvl := range levels {
		if !lvl.ReorderPoint.IsPositive() {
			continue
		}
		qty := onHand[pairKey{lvl.ProductID, lvl.WarehouseID}]
		if qty.GreaterThan(lvl.ReorderPoint) {
			continue
		}
		out = append(out, LowStockAlert{
			ProductID:      lvl.ProductID,
			WarehouseID:    lvl.WarehouseID,
			OnHand:         qty,
			ReorderPoint:   lvl.ReorderPoint,
			PreferredStock: lvl.PreferredStock,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Shortfall(), out[j].Shortfall()
		if !si.Equal(sj) {
			return si.GreaterThan(sj)
		}
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

func expiringFrom(ctx context.Context, r SnapshotReader, today time.Time, horizonDays int) ([]ExpiringLot, error) {
	lots, err := r.ListLots(ctx, LotFilter{})
	if err != nil {
		return nil, err
	}
	cutoff := today.AddDate(0, 0, horizonDays)
	out := make([]ExpiringLot, 0)
	for _, lot := range stockedWithExpiry(lots) {
		if dateOf(*lot.ExpiryDate).After(cutoff) {
			continue
		}
		out = append(out, ExpiringLot{
			LotID:             lot.ID,
			LotNumber:         lot.LotNumber,
			ProductID:         lot.ProductID,
			WarehouseID:       lot.WarehouseID,
			ExpiryDate:        *lot.ExpiryDate,
			QuantityAvailable: lot.QuantityAvailable,
		})
	}
	return out, nil
}

// stockedWithExpiry keeps lots holding stock with a known expiry, soonest first.
func stockedWithExpiry(lots []Lot) []Lot {
	out := make([]Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.ExpiryDate == nil || !lot.QuantityAvailable.IsPositive() {
			continue
		}
		out = append(out, lot)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := *out[i].ExpiryDate, *out[j].ExpiryDate
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type pairKey struct {
	productID   int64
	warehouseID int64
}

func indexOnHand(balances []Balance) map[pairKey]decimal.Decimal {
	out := make(map[pairKey]decimal.Decimal, len(balances))
	for _, b := range balances {
		out[pairKey{b.ProductID, b.WarehouseID}] = b.OnHand
	}
	return out
}
