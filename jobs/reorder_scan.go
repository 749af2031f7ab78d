package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

// AlertSource is the slice of the inventory service the scan reads.
type AlertSource interface {
	LowStockAlerts(ctx context.Context) ([]inventory.LowStockAlert, error)
	ExpiringLots(ctx context.Context, horizonDays int) ([]inventory.ExpiringLot, error)
}

// ReorderScanJob logs low-stock and expiring-lot alerts and publishes their counts.
type ReorderScanJob struct {
	Alerts      AlertSource
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	HorizonDays int
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(alerts AlertSource, logger *slog.Logger, metrics *jobmetrics.Metrics, horizonDays int) *ReorderScanJob {
	return &ReorderScanJob{Alerts: alerts, Logger: logger, Metrics: metrics, HorizonDays: horizonDays}
}

// ScanResult summarises one run.
type ScanResult struct {
	LowStock []inventory.LowStockAlert
	Expiring []inventory.ExpiringLot
}

// Handle executes the scan for an asynq task.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Alerts == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.HorizonDays)
	return err
}

// Run evaluates both alert families concurrently.
func (j *ReorderScanJob) Run(ctx context.Context, horizonDays int) (result ScanResult, err error) {
	if horizonDays <= 0 {
		horizonDays = j.HorizonDays
	}
	tracker := j.Metrics.Track(TaskReorderScan)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	logger := j.logger().With(slog.Int("horizon_days", horizonDays))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result.LowStock, err = j.Alerts.LowStockAlerts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		result.Expiring, err = j.Alerts.ExpiringLots(gctx, horizonDays)
		return err
	})
	if err = g.Wait(); err != nil {
		logger.Error("reorder scan failed", slog.Any("error", err))
		return ScanResult{}, err
	}

	for _, a := range result.LowStock {
		logger.Warn("stock below reorder point",
			slog.Int64("product_id", a.ProductID),
			slog.Int64("warehouse_id", a.WarehouseID),
			slog.String("on_hand", a.OnHand.String()),
			slog.String("reorder_point", a.ReorderPoint.String()),
		)
	}
	for _, lot := range result.Expiring {
		logger.Warn("lot nearing expiry",
			slog.Int64("lot_id", lot.LotID),
			slog.String("lot_number", lot.LotNumber),
			slog.Int64("warehouse_id", lot.WarehouseID),
			slog.String("expiry_date", lot.ExpiryDate.Format(time.DateOnly)),
		)
	}
	j.Metrics.SetAlerts("low_stock", len(result.LowStock))
	j.Metrics.SetAlerts("expiring_lot", len(result.Expiring))

	logger.Info("completed reorder scan",
		slog.Int("low_stock", len(result.LowStock)),
		slog.Int("expiring", len(result.Expiring)),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
