package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates supported ledger movements.
type TransactionType string

const (
	// TransactionTypeIn represents an inbound movement.
	TransactionTypeIn TransactionType = "in"
	// TransactionTypeOut represents an outbound movement.
	TransactionTypeOut TransactionType = "out"
	// TransactionTypeAdjustment is a signed direct delta.
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// Valid reports whether t is a known ledger type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeAdjustment:
		return true
	}
	return false
}

// LotStatus tracks whether a lot still holds stock.
type LotStatus string

const (
	LotStatusActive    LotStatus = "active"
	LotStatusExhausted LotStatus = "exhausted"
)

// Balance summarises stock of a product in a warehouse.
type Balance struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Reserved    decimal.Decimal `json:"reserved"`
	Available   decimal.Decimal `json:"available"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Lot is a batch of a product at one warehouse.
type Lot struct {
	ID                int64           `json:"id"`
	ProductID         int64           `json:"product_id"`
	WarehouseID       int64           `json:"warehouse_id"`
	LotNumber         string          `json:"lot_number"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	ManufactureDate   *time.Time      `json:"manufacture_date,omitempty"`
	ReceivedDate      *time.Time      `json:"received_date,omitempty"`
	Status            LotStatus       `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StockTransaction is an immutable ledger entry.
type StockTransaction struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	WarehouseID   int64           `json:"warehouse_id"`
	LotID         *int64          `json:"lot_id,omitempty"`
	Type          TransactionType `json:"txn_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	TransferID    string          `json:"transfer_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	TxnDate       time.Time       `json:"txn_date"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReorderLevel configures replenishment thresholds.
type ReorderLevel struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	ReorderPoint   decimal.Decimal `json:"reorder_point"`
	SafetyStock    decimal.Decimal `json:"safety_stock"`
	PreferredStock decimal.Decimal `json:"preferred_stock"`
	LeadTimeDays   int             `json:"lead_time_days"`
}

// Product is the catalog projection needed by the stock summary.
type Product struct {
	ID   int64  `json:"id"`
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

// Warehouse is the catalog projection needed by the stock summary.
type Warehouse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	IsPrimary bool   `json:"is_primary"`
}

// TransactionInput describes a receive, issue or adjustment request.
type TransactionInput struct {
	ProductID       int64           `json:"product_id" validate:"gt=0"`
	WarehouseID     int64           `json:"warehouse_id" validate:"gt=0"`
	Type            TransactionType `json:"txn_type" validate:"required,oneof=in out adjustment"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	LotID           *int64          `json:"lot_id,omitempty" validate:"omitempty,gt=0"`
	LotNumber       string          `json:"lot_number,omitempty" validate:"max=100"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ManufactureDate *time.Time      `json:"manufacture_date,omitempty"`
	ReceivedDate    *time.Time      `json:"received_date,omitempty"`
	ReferenceType   string          `json:"reference_type,omitempty" validate:"max=50"`
	ReferenceID     string          `json:"reference_id,omitempty" validate:"max=100"`
	Notes           string          `json:"notes,omitempty"`
	TxnDate         *time.Time      `json:"txn_date,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" validate:"max=200"`
	ActorID         int64           `json:"-"`
}

func (in TransactionInput) lotRequested() bool {
	return in.LotID != nil || in.LotNumber != ""
}

// TransferInput describes a two-leg move between warehouses.
type TransferInput struct {
	ProductID       int64           `json:"product_id" validate:"gt=0"`
	FromWarehouseID int64           `json:"from_warehouse_id"`
	ToWarehouseID   int64           `json:"to_warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	LotID           *int64          `json:"lot_id,omitempty" validate:"omitempty,gt=0"`
	LotNumber       string          `json:"lot_number,omitempty" validate:"max=100"`
	ReferenceID     string          `json:"reference_id,omitempty" validate:"max=100"`
	Notes           string          `json:"notes,omitempty"`
	TxnDate         *time.Time      `json:"txn_date,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" validate:"max=200"`
	ActorID         int64           `json:"-"`
}

func (in TransferInput) lotRequested() bool {
	return in.LotID != nil || in.LotNumber != ""
}

// TransferResult identifies both ledger legs of a transfer.
type TransferResult struct {
	TransferID string `json:"transfer_id"`
	OutID      int64  `json:"out_id"`
	InID       int64  `json:"in_id"`
}

// ReorderLevelInput upserts a reorder configuration.
type ReorderLevelInput struct {
	ProductID      int64           `json:"product_id" validate:"gt=0"`
	WarehouseID    int64           `json:"warehouse_id" validate:"gt=0"`
	ReorderPoint   decimal.Decimal `json:"reorder_point"`
	SafetyStock    decimal.Decimal `json:"safety_stock"`
	PreferredStock decimal.Decimal `json:"preferred_stock"`
	LeadTimeDays   int             `json:"lead_time_days" validate:"gte=0"`
}

// StockFilter narrows balance and summary reads.
type StockFilter struct {
	ProductID   int64
	WarehouseID int64
}

// LotFilter narrows lot reads.
type LotFilter struct {
	ProductID   int64
	WarehouseID int64
	ActiveOnly  bool
}

// LedgerFilter narrows ledger reads.
type LedgerFilter struct {
	ProductID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// StockSummaryRow is one warehouse × product cell of the stock summary.
type StockSummaryRow struct {
	ProductID      int64           `json:"product_id"`
	ProductSKU     string          `json:"product_sku"`
	ProductName    string          `json:"product_name"`
	WarehouseID    int64           `json:"warehouse_id"`
	WarehouseName  string          `json:"warehouse_name"`
	OnHand         decimal.Decimal `json:"on_hand"`
	Reserved       decimal.Decimal `json:"reserved"`
	Available      decimal.Decimal `json:"available"`
	AvgCost        decimal.Decimal `json:"avg_cost"`
	ReorderPoint   decimal.Decimal `json:"reorder_point"`
	PreferredStock decimal.Decimal `json:"preferred_stock"`
	IsBelowReorder bool            `json:"is_below_reorder"`
}

// LowStockAlert flags a pair at or below its reorder point.
type LowStockAlert struct {
	ProductID      int64           `json:"product_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	OnHand         decimal.Decimal `json:"on_hand"`
	ReorderPoint   decimal.Decimal `json:"reorder_point"`
	PreferredStock decimal.Decimal `json:"preferred_stock"`
}

// Shortfall is how far on-hand sits below the reorder point.
func (a LowStockAlert) Shortfall() decimal.Decimal {
	return a.ReorderPoint.Sub(a.OnHand)
}

// ExpiringLot flags a lot inside the expiry horizon.
type ExpiringLot struct {
	LotID             int64           `json:"lot_id"`
	LotNumber         string          `json:"lot_number"`
	ProductID         int64           `json:"product_id"`
	WarehouseID       int64           `json:"warehouse_id"`
	ExpiryDate        time.Time       `json:"expiry_date"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
}

// ReorderAlerts bundles both alert families.
type ReorderAlerts struct {
	LowStock     []LowStockAlert `json:"low_stock"`
	ExpiringLots []ExpiringLot   `json:"expiring_lots"`
}

// ValuationRow is one line of the valuation report.
type ValuationRow struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	OnHand      decimal.Decimal `json:"on_hand"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	StockValue  decimal.Decimal `json:"stock_value"`
}

// ExpiryRow is one line of the expiry report.
type ExpiryRow struct {
	LotID             int64           `json:"lot_id"`
	LotNumber         string          `json:"lot_number"`
	ProductID         int64           `json:"product_id"`
	WarehouseID       int64           `json:"warehouse_id"`
	ExpiryDate        time.Time       `json:"expiry_date"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
	DaysToExpiry      int             `json:"days_to_expiry"`
}
