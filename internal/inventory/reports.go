package inventory

import (
	"context"
	"sort"
	"time"
)

// StockSummary crosses active warehouses with products and overlays balances
// and reorder levels. Pairs without a balance row report zero stock.
func (s *Service) StockSummary(ctx context.Context, filter StockFilter) ([]StockSummaryRow, error) {
	var (
		warehouses []Warehouse
		products   []Product
		balances   []Balance
		levels     []ReorderLevel
	)
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		var err error
		if warehouses, err = r.ListActiveWarehouses(ctx, filter.WarehouseID); err != nil {
			return err
		}
		if products, err = r.ListProducts(ctx, filter.ProductID); err != nil {
			return err
		}
		if balances, err = r.ListBalances(ctx, filter); err != nil {
			return err
		}
		levels, err = r.ListReorderLevels(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	byPair := make(map[pairKey]Balance, len(balances))
	for _, b := range balances {
		byPair[pairKey{b.ProductID, b.WarehouseID}] = b
	}
	levelByPair := make(map[pairKey]ReorderLevel, len(levels))
	for _, lvl := range levels {
		levelByPair[pairKey{lvl.ProductID, lvl.WarehouseID}] = lvl
	}

	rows := make([]StockSummaryRow, 0, len(warehouses)*len(products))
	for _, wh := range warehouses {
		for _, p := range products {
			key := pairKey{p.ID, wh.ID}
			bal := byPair[key]
			lvl := levelByPair[key]
			rows = append(rows, StockSummaryRow{
				ProductID:      p.ID,
				ProductSKU:     p.SKU,
				ProductName:    p.Name,
				WarehouseID:    wh.ID,
				WarehouseName:  wh.Name,
				OnHand:         bal.OnHand,
				Reserved:       bal.Reserved,
				Available:      bal.Available,
				AvgCost:        bal.AvgCost,
				ReorderPoint:   lvl.ReorderPoint,
				PreferredStock: lvl.PreferredStock,
				IsBelowReorder: lvl.ReorderPoint.IsPositive() && bal.OnHand.LessThanOrEqual(lvl.ReorderPoint),
			})
		}
	}
	return rows, nil
}

// Lots lists lots, soonest expiry first.
func (s *Service) Lots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	var lots []Lot
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		var err error
		lots, err = r.ListLots(ctx, filter)
		return err
	})
	if lots == nil {
		lots = []Lot{}
	}
	return lots, err
}

// Ledger lists ledger entries, newest first, capped at the filter limit.
func (s *Service) Ledger(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error) {
	filter = normalizeLedgerFilter(filter)
	var entries []StockTransaction
	err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
		var err error
		entries, err = r.ListTransactions(ctx, filter)
		return err
	})
	if entries == nil {
		entries = []StockTransaction{}
	}
	return entries, err
}

// ValuationReport values every balance at its average cost, highest value first.
func (s *Service) ValuationReport(ctx context.Context) ([]ValuationRow, error) {
	key, err := s.cache.BuildKey(ctx, "valuation")
	if err != nil {
		return nil, err
	}
	rows := []ValuationRow{}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
		var balances []Balance
		err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
			var err error
			balances, err = r.ListBalances(ctx, StockFilter{})
			return err
		})
		if err != nil {
			return nil, err
		}
		return valuationRows(balances), nil
	})
	return rows, err
}

func valuationRows(balances []Balance) []ValuationRow {
	rows := make([]ValuationRow, 0, len(balances))
	for _, b := range balances {
		rows = append(rows, ValuationRow{
			ProductID:   b.ProductID,
			WarehouseID: b.WarehouseID,
			OnHand:      b.OnHand,
			AvgCost:     b.AvgCost,
			StockValue:  b.OnHand.Mul(b.AvgCost).Round(2),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].StockValue.Equal(rows[j].StockValue) {
			return rows[i].StockValue.GreaterThan(rows[j].StockValue)
		}
		if rows[i].ProductID != rows[j].ProductID {
			return rows[i].ProductID < rows[j].ProductID
		}
		return rows[i].WarehouseID < rows[j].WarehouseID
	})
	return rows
}

// ExpiryReport lists stocked lots with an expiry date and the whole days left.
// Lots already past expiry report a negative count.
func (s *Service) ExpiryReport(ctx context.Context) ([]ExpiryRow, error) {
	today := dateOf(s.clock())
	key, err := s.cache.BuildKey(ctx, "expiry", today.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	rows := []ExpiryRow{}
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
		var lots []Lot
		err := s.repo.WithSnapshot(ctx, func(ctx context.Context, r SnapshotReader) error {
			var err error
			lots, err = r.ListLots(ctx, LotFilter{})
			return err
		})
		if err != nil {
			return nil, err
		}
		out := make([]ExpiryRow, 0, len(lots))
		for _, lot := range stockedWithExpiry(lots) {
			out = append(out, ExpiryRow{
				LotID:             lot.ID,
				LotNumber:         lot.LotNumber,
				ProductID:         lot.ProductID,
				WarehouseID:       lot.WarehouseID,
				ExpiryDate:        *lot.ExpiryDate,
				QuantityAvailable: lot.QuantityAvailable,
				DaysToExpiry:      daysBetween(today, *lot.ExpiryDate),
			})
		}
		return out, nil
	})
	return rows, err
}

// daysBetween counts calendar days from a to b, ignoring time of day.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
