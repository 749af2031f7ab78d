package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	cache       *ReportCache
	validate    *validator.Validate
	logger      *slog.Logger
	horizonDays int
	clock       func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	ExpiryHorizonDays int
	Cache             *ReportCache
	Logger            *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, integration IntegrationHandler) *Service {
	horizon := cfg.ExpiryHorizonDays
	if horizon <= 0 {
		horizon = DefaultExpiryHorizonDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		integration: integration,
		cache:       cfg.Cache,
		validate:    validator.New(),
		logger:      logger,
		horizonDays: horizon,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

const (
	idempotencyModule = "inventory"
	keyReleaseTimeout = 5 * time.Second
)

// CreateTransaction posts a receive, issue or adjustment and returns the ledger id.
func (s *Service) CreateTransaction(ctx context.Context, in TransactionInput) (int64, error) {
	if err := s.validateTransaction(in); err != nil {
		return 0, err
	}
	now := s.clock()
	release, err := s.claimKey(ctx, in.IdempotencyKey)
	if err != nil {
		return 0, err
	}

	delta := signedDelta(in.Type, in.Quantity)
	var (
		ledgerID int64
		lotID    *int64
		balance  Balance
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, exists, err := loadBalance(ctx, tx, in.ProductID, in.WarehouseID)
		if err != nil {
			return err
		}
		if in.Type == TransactionTypeOut && delta.Abs().GreaterThan(current.OnHand) {
			return fmt.Errorf("%w: product %d warehouse %d on hand %s, requested %s",
				ErrInsufficientStock, in.ProductID, in.WarehouseID, current.OnHand, in.Quantity)
		}

		if in.lotRequested() {
			var dates lotDates
			if delta.IsPositive() {
				dates = lotDates{Expiry: in.ExpiryDate, Manufacture: in.ManufactureDate, Received: in.ReceivedDate}
				if dates.Received == nil {
					today := dateOf(now)
					dates.Received = &today
				}
			}
			lot, err := applyLotDelta(ctx, tx, in.ProductID, in.WarehouseID, lotRef{ID: in.LotID, Number: in.LotNumber}, delta, dates, now)
			if err != nil {
				return err
			}
			id := lot.ID
			lotID = &id
		}

		balance, err = applyBalanceDelta(current, exists, delta, in.UnitCost, now)
		if err != nil {
			return err
		}
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}

		txnDate := now
		if in.TxnDate != nil && !in.TxnDate.IsZero() {
			txnDate = *in.TxnDate
		}
		ledgerID, err = tx.InsertTransaction(ctx, StockTransaction{
			ProductID:     in.ProductID,
			WarehouseID:   in.WarehouseID,
			LotID:         lotID,
			Type:          in.Type,
			Quantity:      in.Quantity,
			UnitCost:      in.UnitCost,
			ReferenceType: referenceTypeOrDefault(in.ReferenceType),
			ReferenceID:   in.ReferenceID,
			Notes:         in.Notes,
			TxnDate:       txnDate,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		release()
		return 0, err
	}

	s.afterCommit(ctx, in.ActorID, MovementPostedEvent{
		LedgerID:    ledgerID,
		ProductID:   in.ProductID,
		WarehouseID: in.WarehouseID,
		LotID:       lotID,
		Type:        in.Type,
		Delta:       delta,
		UnitCost:    in.UnitCost,
		OnHand:      balance.OnHand,
		AvgCost:     balance.AvgCost,
		PostedAt:    now,
	}, in.Notes)
	return ledgerID, nil
}

// Transfer moves stock between warehouses as an out leg plus an in leg.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := s.validateTransfer(in); err != nil {
		return TransferResult{}, err
	}
	now := s.clock()
	today := dateOf(now)
	release, err := s.claimKey(ctx, in.IdempotencyKey)
	if err != nil {
		return TransferResult{}, err
	}

	result := TransferResult{TransferID: uuid.NewString()}
	refID := in.ReferenceID
	if refID == "" {
		refID = result.TransferID
	}
	txnDate := now
	if in.TxnDate != nil && !in.TxnDate.IsZero() {
		txnDate = *in.TxnDate
	}

	var (
		src, dst         Balance
		srcLotID, dstLot *int64
		outCost, inCost  decimal.Decimal
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Lock in warehouse order so opposing transfers cannot deadlock.
		balances, err := loadBalancesOrdered(ctx, tx, in.ProductID, in.FromWarehouseID, in.ToWarehouseID)
		if err != nil {
			return err
		}
		srcCur, dstCur := balances[in.FromWarehouseID], balances[in.ToWarehouseID]
		if srcCur.balance.OnHand.LessThan(in.Quantity) {
			return fmt.Errorf("%w: product %d warehouse %d on hand %s, requested %s",
				ErrInsufficientStock, in.ProductID, in.FromWarehouseID, srcCur.balance.OnHand, in.Quantity)
		}

		if in.lotRequested() {
			ref := lotRef{ID: in.LotID, Number: in.LotNumber}
			srcLot, found, err := resolveLot(ctx, tx, in.ProductID, in.FromWarehouseID, ref)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s in warehouse %d", ErrLotNotFound, describeLotRef(ref), in.FromWarehouseID)
			}
			if srcLot.QuantityAvailable.LessThan(in.Quantity) {
				return fmt.Errorf("%w: lot %s holds %s, requested %s",
					ErrInsufficientLotQuantity, srcLot.LotNumber, srcLot.QuantityAvailable, in.Quantity)
			}
			srcLot, err = mutateLot(ctx, tx, srcLot, in.Quantity.Neg(), lotDates{}, now)
			if err != nil {
				return err
			}
			carried := lotDates{Expiry: srcLot.ExpiryDate, Manufacture: srcLot.ManufactureDate, Received: &today}
			destLot, err := applyLotDelta(ctx, tx, in.ProductID, in.ToWarehouseID, lotRef{Number: srcLot.LotNumber}, in.Quantity, carried, now)
			if err != nil {
				return err
			}
			srcLotID, dstLot = &srcLot.ID, &destLot.ID
		}

		outCost = srcCur.balance.AvgCost
		inCost = in.UnitCost
		if !inCost.IsPositive() {
			inCost = outCost
		}
		src, err = applyBalanceDelta(srcCur.balance, srcCur.exists, in.Quantity.Neg(), decimal.Zero, now)
		if err != nil {
			return err
		}
		dst, err = applyBalanceDelta(dstCur.balance, dstCur.exists, in.Quantity, inCost, now)
		if err != nil {
			return err
		}
		if err := tx.UpsertBalance(ctx, src); err != nil {
			return err
		}
		if err := tx.UpsertBalance(ctx, dst); err != nil {
			return err
		}

		result.OutID, err = tx.InsertTransaction(ctx, StockTransaction{
			ProductID:     in.ProductID,
			WarehouseID:   in.FromWarehouseID,
			LotID:         srcLotID,
			Type:          TransactionTypeOut,
			Quantity:      in.Quantity,
			UnitCost:      outCost,
			ReferenceType: ReferenceTypeTransfer,
			ReferenceID:   refID,
			TransferID:    result.TransferID,
			Notes:         transferNote("Transfer to warehouse", in.ToWarehouseID, in.Notes),
			TxnDate:       txnDate,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		result.InID, err = tx.InsertTransaction(ctx, StockTransaction{
			ProductID:     in.ProductID,
			WarehouseID:   in.ToWarehouseID,
			LotID:         dstLot,
			Type:          TransactionTypeIn,
			Quantity:      in.Quantity,
			UnitCost:      inCost,
			ReferenceType: ReferenceTypeTransfer,
			ReferenceID:   refID,
			TransferID:    result.TransferID,
			Notes:         transferNote("Transfer from warehouse", in.FromWarehouseID, in.Notes),
			TxnDate:       txnDate,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		release()
		return TransferResult{}, err
	}

	s.afterCommit(ctx, in.ActorID, MovementPostedEvent{
		LedgerID:    result.OutID,
		TransferID:  result.TransferID,
		ProductID:   in.ProductID,
		WarehouseID: in.FromWarehouseID,
		LotID:       srcLotID,
		Type:        TransactionTypeOut,
		Delta:       in.Quantity.Neg(),
		UnitCost:    outCost,
		OnHand:      src.OnHand,
		AvgCost:     src.AvgCost,
		PostedAt:    now,
	}, in.Notes)
	s.afterCommit(ctx, in.ActorID, MovementPostedEvent{
		LedgerID:    result.InID,
		TransferID:  result.TransferID,
		ProductID:   in.ProductID,
		WarehouseID: in.ToWarehouseID,
		LotID:       dstLot,
		Type:        TransactionTypeIn,
		Delta:       in.Quantity,
		UnitCost:    inCost,
		OnHand:      dst.OnHand,
		AvgCost:     dst.AvgCost,
		PostedAt:    now,
	}, in.Notes)
	return result, nil
}

// UpsertReorderLevel stores replenishment thresholds for a product/warehouse.
func (s *Service) UpsertReorderLevel(ctx context.Context, in ReorderLevelInput) (int64, error) {
	if err := s.validateReorderLevel(in); err != nil {
		return 0, err
	}
	id, err := s.repo.UpsertReorderLevel(ctx, ReorderLevel{
		ProductID:      in.ProductID,
		WarehouseID:    in.WarehouseID,
		ReorderPoint:   in.ReorderPoint,
		SafetyStock:    in.SafetyStock,
		PreferredStock: in.PreferredStock,
		LeadTimeDays:   in.LeadTimeDays,
	})
	if err != nil {
		return 0, err
	}
	s.bumpCache(ctx)
	return id, nil
}

type loadedBalance struct {
	balance Balance
	exists  bool
}

func loadBalance(ctx context.Context, tx TxRepository, productID, warehouseID int64) (Balance, bool, error) {
	bal, err := tx.GetBalanceForUpdate(ctx, productID, warehouseID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return Balance{ProductID: productID, WarehouseID: warehouseID}, false, nil
		}
		return Balance{}, false, err
	}
	return bal, true, nil
}

func loadBalancesOrdered(ctx context.Context, tx TxRepository, productID int64, warehouseIDs ...int64) (map[int64]loadedBalance, error) {
	ordered := append([]int64(nil), warehouseIDs...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j] < ordered[j-1]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	out := make(map[int64]loadedBalance, len(ordered))
	for _, wh := range ordered {
		bal, exists, err := loadBalance(ctx, tx, productID, wh)
		if err != nil {
			return nil, err
		}
		out[wh] = loadedBalance{balance: bal, exists: exists}
	}
	return out, nil
}

func signedDelta(t TransactionType, qty decimal.Decimal) decimal.Decimal {
	if t == TransactionTypeOut {
		return qty.Neg()
	}
	return qty
}

func transferNote(prefix string, warehouseID int64, note string) string {
	if note == "" {
		return fmt.Sprintf("%s %d", prefix, warehouseID)
	}
	return fmt.Sprintf("%s %d: %s", prefix, warehouseID, note)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// claimKey reserves an idempotency key and returns a release func for failures.
func (s *Service) claimKey(ctx context.Context, key string) (func(), error) {
	if s.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return nil, err
	}
	return func() {
		// The request context may already be cancelled when the movement fails.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keyReleaseTimeout)
		defer cancel()
		if err := s.idempotency.Delete(releaseCtx, key); err != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

// afterCommit records audit and integration side effects. The movement is
// already durable, so failures are logged rather than returned.
func (s *Service) afterCommit(ctx context.Context, actorID int64, evt MovementPostedEvent, note string) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   fmt.Sprintf("inventory:%s", evt.Type),
			Entity:   "inventory_tx",
			EntityID: fmt.Sprintf("%d", evt.LedgerID),
			Meta: map[string]any{
				"warehouse_id": evt.WarehouseID,
				"product_id":   evt.ProductID,
				"delta":        evt.Delta.String(),
				"transfer_id":  evt.TransferID,
				"note":         note,
			},
			At: evt.PostedAt,
		})
		if err != nil {
			s.logger.Warn("record inventory audit", slog.Int64("ledger_id", evt.LedgerID), slog.Any("error", err))
		}
	}
	if s.integration != nil {
		if err := s.integration.HandleMovementPosted(ctx, evt); err != nil {
			s.logger.Warn("inventory integration hook", slog.Int64("ledger_id", evt.LedgerID), slog.Any("error", err))
		}
	}
}
