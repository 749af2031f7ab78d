package inventory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// memoryState is the whole store. Transactions work on a clone and swap it
// in on success, so a failed callback leaves nothing behind.
type memoryState struct {
	balances   map[pairKey]Balance
	lots       map[int64]Lot
	txns       []StockTransaction
	levels     map[pairKey]ReorderLevel
	products   []Product
	warehouses []Warehouse
	nextLot    int64
	nextTxn    int64
	nextLevel  int64
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.balances = maps.Clone(s.balances)
	c.lots = maps.Clone(s.lots)
	c.txns = slices.Clone(s.txns)
	c.levels = maps.Clone(s.levels)
	c.products = slices.Clone(s.products)
	c.warehouses = slices.Clone(s.warehouses)
	return &c
}

type memoryRepo struct {
	mu        sync.Mutex
	state     *memoryState
	txCalls   int
	readCalls int
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		balances: make(map[pairKey]Balance),
		lots:     make(map[int64]Lot),
		levels:   make(map[pairKey]ReorderLevel),
	}}
}

func (r *memoryRepo) seedCatalog(products []Product, warehouses []Warehouse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.products = products
	r.state.warehouses = warehouses
}

func (r *memoryRepo) snapshot() *memoryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txCalls++
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{state: work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) WithSnapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error {
	r.mu.Lock()
	r.readCalls++
	snap := r.state.clone()
	r.mu.Unlock()
	return fn(ctx, &memoryTx{state: snap})
}

func (r *memoryRepo) UpsertReorderLevel(ctx context.Context, level ReorderLevel) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{level.ProductID, level.WarehouseID}
	if existing, ok := r.state.levels[key]; ok {
		level.ID = existing.ID
	} else {
		r.state.nextLevel++
		level.ID = r.state.nextLevel
	}
	r.state.levels[key] = level
	return level.ID, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, productID, warehouseID int64) (Balance, error) {
	if bal, ok := tx.state.balances[pairKey{productID, warehouseID}]; ok {
		return bal, nil
	}
	return Balance{ProductID: productID, WarehouseID: warehouseID}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.state.balances[pairKey{balance.ProductID, balance.WarehouseID}] = balance
	return nil
}

func (tx *memoryTx) GetLotByIDForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	if lot, ok := tx.state.lots[lotID]; ok {
		return lot, nil
	}
	return Lot{}, ErrLotRowNotFound
}

func (tx *memoryTx) GetLotByNumberForUpdate(ctx context.Context, productID, warehouseID int64, lotNumber string) (Lot, error) {
	for _, lot := range tx.state.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID && lot.LotNumber == lotNumber {
			return lot, nil
		}
	}
	return Lot{}, ErrLotRowNotFound
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	tx.state.nextLot++
	lot.ID = tx.state.nextLot
	tx.state.lots[lot.ID] = lot
	return lot.ID, nil
}

func (tx *memoryTx) UpdateLot(ctx context.Context, lot Lot) error {
	tx.state.lots[lot.ID] = lot
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn StockTransaction) (int64, error) {
	tx.state.nextTxn++
	txn.ID = tx.state.nextTxn
	tx.state.txns = append(tx.state.txns, txn)
	return txn.ID, nil
}

func matchID(filter, value int64) bool {
	return filter <= 0 || filter == value
}

func (tx *memoryTx) ListBalances(ctx context.Context, filter StockFilter) ([]Balance, error) {
	out := []Balance{}
	for _, b := range tx.state.balances {
		if matchID(filter.ProductID, b.ProductID) && matchID(filter.WarehouseID, b.WarehouseID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

func (tx *memoryTx) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	out := []Lot{}
	for _, lot := range tx.state.lots {
		if !matchID(filter.ProductID, lot.ProductID) || !matchID(filter.WarehouseID, lot.WarehouseID) {
			continue
		}
		if filter.ActiveOnly && lot.Status != LotStatusActive {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ExpiryDate, out[j].ExpiryDate
		switch {
		case ei != nil && ej != nil && !ei.Equal(*ej):
			return ei.Before(*ej)
		case ei != nil && ej == nil:
			return true
		case ei == nil && ej != nil:
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *memoryTx) ListReorderLevels(ctx context.Context, filter StockFilter) ([]ReorderLevel, error) {
	out := []ReorderLevel{}
	for _, lvl := range tx.state.levels {
		if matchID(filter.ProductID, lvl.ProductID) && matchID(filter.WarehouseID, lvl.WarehouseID) {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) ListProducts(ctx context.Context, productID int64) ([]Product, error) {
	out := []Product{}
	for _, p := range tx.state.products {
		if matchID(productID, p.ID) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.Compare(out[i].Name, out[j].Name) < 0 })
	return out, nil
}

func (tx *memoryTx) ListActiveWarehouses(ctx context.Context, warehouseID int64) ([]Warehouse, error) {
	out := []Warehouse{}
	for _, w := range tx.state.warehouses {
		if w.IsActive && matchID(warehouseID, w.ID) {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.Compare(out[i].Name, out[j].Name) < 0 })
	return out, nil
}

func (tx *memoryTx) ListTransactions(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error) {
	filter = normalizeLedgerFilter(filter)
	out := []StockTransaction{}
	for _, txn := range tx.state.txns {
		if !matchID(filter.ProductID, txn.ProductID) || !matchID(filter.WarehouseID, txn.WarehouseID) {
			continue
		}
		if !filter.From.IsZero() && txn.TxnDate.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && txn.TxnDate.After(filter.To) {
			continue
		}
		out = append(out, txn)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TxnDate.Equal(out[j].TxnDate) {
			return out[i].TxnDate.After(out[j].TxnDate)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

type memoryIdempotency struct {
	mu      sync.Mutex
	keys    map[string]string
	deleted []string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []MovementPostedEvent
	err    error
}

func (e *eventRecorder) HandleMovementPosted(ctx context.Context, evt MovementPostedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
	return e.err
}

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, integration IntegrationHandler) *Service {
	svc := NewService(repo, audit, idem, ServiceConfig{}, integration)
	svc.clock = func() time.Time { return testNow }
	return svc
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func int64Ptr(v int64) *int64 {
	return &v
}
