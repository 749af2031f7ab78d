package integration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// CacheBumper invalidates cached read models.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// MovementRecorder counts committed movements.
type MovementRecorder interface {
	ObserveMovement(txnType string, quantity float64)
}

// Hooks fans committed inventory movements out to the cache and metrics.
type Hooks struct {
	cache   CacheBumper
	metrics MovementRecorder
	logger  *slog.Logger
}

// NewHooks constructs integration hooks. Nil collaborators are skipped.
func NewHooks(cache CacheBumper, metrics MovementRecorder, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{cache: cache, metrics: metrics, logger: logger}
}

// HandleMovementPosted reacts to one committed ledger entry.
func (h *Hooks) HandleMovementPosted(ctx context.Context, evt inventory.MovementPostedEvent) error {
	if h == nil {
		return nil
	}
	if evt.LedgerID == 0 {
		return errors.New("integration: ledger id required")
	}
	if h.metrics != nil {
		h.metrics.ObserveMovement(movementLabel(evt), movedQuantity(evt))
	}
	h.logger.Debug("inventory movement posted",
		slog.Int64("ledger_id", evt.LedgerID),
		slog.Int64("product_id", evt.ProductID),
		slog.Int64("warehouse_id", evt.WarehouseID),
		slog.String("type", string(evt.Type)),
		slog.String("delta", evt.Delta.String()),
		slog.String("on_hand", evt.OnHand.String()),
	)
	if h.cache == nil {
		return nil
	}
	return h.cache.Bump(ctx)
}
