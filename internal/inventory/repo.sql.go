package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

type snapshotReader struct {
	tx pgx.Tx
}

var errRepositoryNotInitialised = errors.New("inventory: repository not initialised")

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errRepositoryNotInitialised
	}
	return classifyTxError(db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	}))
}

// Two first movements for the same balance or lot number race on insert and
// one of them fails with one of these codes.
var retryableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"23505": true, // unique_violation
}

func classifyTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && retryableCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", ErrConcurrentUpdate, pgErr.Message)
	}
	return err
}

// WithSnapshot executes the callback inside a read-only repeatable-read
// transaction so every query observes the same snapshot.
func (r *Repository) WithSnapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error {
	if r == nil || r.pool == nil {
		return errRepositoryNotInitialised
	}
	return db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &snapshotReader{tx: tx})
	})
}

// UpsertReorderLevel inserts or replaces thresholds keyed by product and warehouse.
func (r *Repository) UpsertReorderLevel(ctx context.Context, level ReorderLevel) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errRepositoryNotInitialised
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO inventory_reorder_levels (product_id, warehouse_id, reorder_point, safety_stock, preferred_stock, lead_time_days, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET reorder_point=EXCLUDED.reorder_point, safety_stock=EXCLUDED.safety_stock,
preferred_stock=EXCLUDED.preferred_stock, lead_time_days=EXCLUDED.lead_time_days, updated_at=NOW()
RETURNING id`, level.ProductID, level.WarehouseID, level.ReorderPoint, level.SafetyStock, level.PreferredStock, level.LeadTimeDays).Scan(&id)
	return id, err
}

const balanceColumns = `product_id, warehouse_id, on_hand, reserved, available, avg_cost, updated_at`

func scanBalance(row pgx.Row) (Balance, error) {
	var bal Balance
	err := row.Scan(&bal.ProductID, &bal.WarehouseID, &bal.OnHand, &bal.Reserved, &bal.Available, &bal.AvgCost, &bal.UpdatedAt)
	return bal, err
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, productID, warehouseID int64) (Balance, error) {
	bal, err := scanBalance(r.tx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM inventory_balances
WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ProductID: productID, WarehouseID: warehouseID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (product_id, warehouse_id, on_hand, reserved, available, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET on_hand=EXCLUDED.on_hand, available=EXCLUDED.available,
avg_cost=EXCLUDED.avg_cost, updated_at=EXCLUDED.updated_at`,
		balance.ProductID, balance.WarehouseID, balance.OnHand, balance.Reserved, balance.Available, balance.AvgCost, balance.UpdatedAt)
	return err
}

const lotColumns = `id, product_id, warehouse_id, lot_number, quantity_available, expiry_date, manufacture_date, received_date, status, created_at, updated_at`

func scanLot(row pgx.Row) (Lot, error) {
	var (
		lot    Lot
		status string
	)
	err := row.Scan(&lot.ID, &lot.ProductID, &lot.WarehouseID, &lot.LotNumber, &lot.QuantityAvailable,
		&lot.ExpiryDate, &lot.ManufactureDate, &lot.ReceivedDate, &status, &lot.CreatedAt, &lot.UpdatedAt)
	lot.Status = LotStatus(status)
	return lot, err
}

func lotRowErr(lot Lot, err error) (Lot, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, ErrLotRowNotFound
	}
	return lot, err
}

func (r *txRepository) GetLotByIDForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	return lotRowErr(scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE id=$1 FOR UPDATE`, lotID)))
}

func (r *txRepository) GetLotByNumberForUpdate(ctx context.Context, productID, warehouseID int64, lotNumber string) (Lot, error) {
	return lotRowErr(scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots
WHERE product_id=$1 AND warehouse_id=$2 AND lot_number=$3 FOR UPDATE`, productID, warehouseID, lotNumber)))
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_lots (product_id, warehouse_id, lot_number, quantity_available, expiry_date, manufacture_date, received_date, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		lot.ProductID, lot.WarehouseID, lot.LotNumber, lot.QuantityAvailable, lot.ExpiryDate, lot.ManufactureDate,
		lot.ReceivedDate, string(lot.Status), lot.CreatedAt, lot.UpdatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateLot(ctx context.Context, lot Lot) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_lots SET quantity_available=$2, expiry_date=$3, manufacture_date=$4, received_date=$5, status=$6, updated_at=$7
WHERE id=$1`, lot.ID, lot.QuantityAvailable, lot.ExpiryDate, lot.ManufactureDate, lot.ReceivedDate, string(lot.Status), lot.UpdatedAt)
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn StockTransaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_tx (product_id, warehouse_id, lot_id, txn_type, quantity, unit_cost, reference_type, reference_id, transfer_id, notes, txn_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		txn.ProductID, txn.WarehouseID, txn.LotID, string(txn.Type), txn.Quantity, txn.UnitCost, txn.ReferenceType,
		nullString(txn.ReferenceID), nullString(txn.TransferID), nullString(txn.Notes), txn.TxnDate, txn.CreatedAt).Scan(&id)
	return id, err
}

func (r *snapshotReader) ListBalances(ctx context.Context, filter StockFilter) ([]Balance, error) {
	where := stockWhere(filter, "product_id", "warehouse_id")
	rows, err := r.tx.Query(ctx, `SELECT `+balanceColumns+` FROM inventory_balances`+where.sql()+`
ORDER BY product_id, warehouse_id`, where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Balance, error) {
		return scanBalance(row)
	})
}

func (r *snapshotReader) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	where := lotWhere(filter)
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM inventory_lots`+where.sql()+`
ORDER BY expiry_date ASC NULLS LAST, id ASC`, where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Lot, error) {
		return scanLot(row)
	})
}

func (r *snapshotReader) ListReorderLevels(ctx context.Context, filter StockFilter) ([]ReorderLevel, error) {
	where := stockWhere(filter, "product_id", "warehouse_id")
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, warehouse_id, reorder_point, safety_stock, preferred_stock, lead_time_days
FROM inventory_reorder_levels`+where.sql()+` ORDER BY product_id, warehouse_id`, where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ReorderLevel, error) {
		var lvl ReorderLevel
		err := row.Scan(&lvl.ID, &lvl.ProductID, &lvl.WarehouseID, &lvl.ReorderPoint, &lvl.SafetyStock, &lvl.PreferredStock, &lvl.LeadTimeDays)
		return lvl, err
	})
}

func (r *snapshotReader) ListProducts(ctx context.Context, productID int64) ([]Product, error) {
	var where whereBuilder
	where.eqID("id", productID)
	rows, err := r.tx.Query(ctx, `SELECT id, sku, name FROM products`+where.sql()+` ORDER BY name, id`, where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Product])
}

func (r *snapshotReader) ListActiveWarehouses(ctx context.Context, warehouseID int64) ([]Warehouse, error) {
	var where whereBuilder
	where.raw("is_active")
	where.eqID("id", warehouseID)
	rows, err := r.tx.Query(ctx, `SELECT id, name, is_active, is_primary FROM warehouses`+where.sql()+` ORDER BY name, id`, where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Warehouse])
}

func (r *snapshotReader) ListTransactions(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error) {
	filter = normalizeLedgerFilter(filter)
	where := ledgerWhere(filter)
	limit := where.placeholder(filter.Limit)
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, warehouse_id, lot_id, txn_type, quantity, unit_cost, reference_type,
COALESCE(reference_id, ''), COALESCE(transfer_id::text, ''), COALESCE(notes, ''), txn_date, created_at
FROM inventory_tx`+where.sql()+`
ORDER BY txn_date DESC, id DESC
LIMIT `+limit, where.args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockTransaction, error) {
		var (
			txn     StockTransaction
			txnType string
		)
		err := row.Scan(&txn.ID, &txn.ProductID, &txn.WarehouseID, &txn.LotID, &txnType, &txn.Quantity, &txn.UnitCost,
			&txn.ReferenceType, &txn.ReferenceID, &txn.TransferID, &txn.Notes, &txn.TxnDate, &txn.CreatedAt)
		txn.Type = TransactionType(txnType)
		return txn, err
	})
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
