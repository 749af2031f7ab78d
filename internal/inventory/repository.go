package inventory

import (
	"context"
	"errors"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	// WithTx runs fn inside one atomic unit; any error rolls everything back.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// WithSnapshot runs fn against a read-only consistent snapshot.
	WithSnapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error
	UpsertReorderLevel(ctx context.Context, level ReorderLevel) (int64, error)
}

// TxRepository exposes transactional operations used by service. Reads lock
// the returned rows until the surrounding transaction ends.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, productID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	GetLotByIDForUpdate(ctx context.Context, lotID int64) (Lot, error)
	GetLotByNumberForUpdate(ctx context.Context, productID, warehouseID int64, lotNumber string) (Lot, error)
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	UpdateLot(ctx context.Context, lot Lot) error
	InsertTransaction(ctx context.Context, txn StockTransaction) (int64, error)
}

// SnapshotReader exposes the read models. Implementations must serve every
// call of one WithSnapshot callback from the same snapshot.
type SnapshotReader interface {
	ListBalances(ctx context.Context, filter StockFilter) ([]Balance, error)
	ListLots(ctx context.Context, filter LotFilter) ([]Lot, error)
	ListReorderLevels(ctx context.Context, filter StockFilter) ([]ReorderLevel, error)
	ListProducts(ctx context.Context, productID int64) ([]Product, error)
	ListActiveWarehouses(ctx context.Context, warehouseID int64) ([]Warehouse, error)
	ListTransactions(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error)
}

var (
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
	// ErrLotRowNotFound indicates missing lot row.
	ErrLotRowNotFound = errors.New("inventory: lot row not found")
)
