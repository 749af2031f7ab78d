package inventory

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func receive(t *testing.T, svc *Service, productID, warehouseID int64, qty, cost string) int64 {
	t.Helper()
	id, err := svc.CreateTransaction(context.Background(), TransactionInput{
		ProductID: productID, WarehouseID: warehouseID, Type: TransactionTypeIn,
		Quantity: dec(qty), UnitCost: dec(cost),
	})
	require.NoError(t, err)
	return id
}

func balanceOf(t *testing.T, repo *memoryRepo, productID, warehouseID int64) Balance {
	t.Helper()
	bal, ok := repo.snapshot().balances[pairKey{productID, warehouseID}]
	require.True(t, ok, "balance %d/%d missing", productID, warehouseID)
	return bal
}

func lotByNumber(t *testing.T, repo *memoryRepo, warehouseID int64, number string) Lot {
	t.Helper()
	for _, lot := range repo.snapshot().lots {
		if lot.WarehouseID == warehouseID && lot.LotNumber == number {
			return lot
		}
	}
	t.Fatalf("lot %s missing in warehouse %d", number, warehouseID)
	return Lot{}
}

func TestReceiveIssueTransferScenario(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	receive(t, svc, 1, 1, "100", "10.00")
	bal := balanceOf(t, repo, 1, 1)
	require.True(t, bal.OnHand.Equal(dec("100")))
	require.True(t, bal.AvgCost.Equal(dec("10")))

	_, err := svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("30")})
	require.NoError(t, err)
	bal = balanceOf(t, repo, 1, 1)
	require.True(t, bal.OnHand.Equal(dec("70")))
	require.True(t, bal.AvgCost.Equal(dec("10")))

	_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("1000")})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, "InsufficientStock", ErrorKind(err))
	require.True(t, balanceOf(t, repo, 1, 1).OnHand.Equal(dec("70")))

	before := len(repo.snapshot().txns)
	res, err := svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("50"), UnitCost: dec("10.00")})
	require.NoError(t, err)
	require.NotEmpty(t, res.TransferID)

	require.True(t, balanceOf(t, repo, 1, 1).OnHand.Equal(dec("20")))
	dst := balanceOf(t, repo, 1, 2)
	require.True(t, dst.OnHand.Equal(dec("50")))
	require.True(t, dst.AvgCost.Equal(dec("10")))

	txns := repo.snapshot().txns
	require.Len(t, txns, before+2)
	out, in := txns[before], txns[before+1]
	require.Equal(t, res.OutID, out.ID)
	require.Equal(t, res.InID, in.ID)
	require.Equal(t, TransactionTypeOut, out.Type)
	require.Equal(t, int64(1), out.WarehouseID)
	require.Equal(t, TransactionTypeIn, in.Type)
	require.Equal(t, int64(2), in.WarehouseID)
	for _, leg := range []StockTransaction{out, in} {
		require.Equal(t, ReferenceTypeTransfer, leg.ReferenceType)
		require.Equal(t, res.TransferID, leg.TransferID)
		require.Equal(t, res.TransferID, leg.ReferenceID)
		require.True(t, leg.Quantity.Equal(dec("50")))
	}
	require.Contains(t, out.Notes, "warehouse 2")
	require.Contains(t, in.Notes, "warehouse 1")
}

func TestWeightedAverageOnReceipt(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)

	receive(t, svc, 1, 1, "10", "5.00")
	receive(t, svc, 1, 1, "10", "7.00")

	bal := balanceOf(t, repo, 1, 1)
	require.True(t, bal.OnHand.Equal(dec("20")))
	require.True(t, bal.AvgCost.Equal(dec("6")), "avg cost %s", bal.AvgCost)
}

func TestZeroCostReceiptKeepsAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)

	receive(t, svc, 1, 1, "10", "4")
	receive(t, svc, 1, 1, "10", "0")

	bal := balanceOf(t, repo, 1, 1)
	require.True(t, bal.OnHand.Equal(dec("20")))
	require.True(t, bal.AvgCost.Equal(dec("4")))
}

func TestOutboundNeverChangesAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	receive(t, svc, 1, 1, "3", "1.10")
	receive(t, svc, 1, 1, "7", "2.35")
	avg := balanceOf(t, repo, 1, 1).AvgCost

	for _, in := range []TransactionInput{
		{ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("4"), UnitCost: dec("99")},
		{ProductID: 1, WarehouseID: 1, Type: TransactionTypeAdjustment, Quantity: dec("-2"), UnitCost: dec("50")},
	} {
		_, err := svc.CreateTransaction(ctx, in)
		require.NoError(t, err)
		require.True(t, balanceOf(t, repo, 1, 1).AvgCost.Equal(avg))
	}
	require.True(t, balanceOf(t, repo, 1, 1).OnHand.Equal(dec("4")))
}

func TestAdjustmentUsesCallerSign(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	receive(t, svc, 1, 1, "10", "2")
	_, err := svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeAdjustment, Quantity: dec("-3")})
	require.NoError(t, err)
	_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeAdjustment, Quantity: dec("3"), UnitCost: dec("4")})
	require.NoError(t, err)

	bal := balanceOf(t, repo, 1, 1)
	require.True(t, bal.OnHand.Equal(dec("10")))
	require.True(t, bal.AvgCost.Equal(dec("2.6")), "avg cost %s", bal.AvgCost)

	_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeAdjustment, Quantity: dec("-11")})
	require.ErrorIs(t, err, ErrInsufficientStock)

	txns := repo.snapshot().txns
	require.True(t, txns[1].Quantity.Equal(dec("-3")), "adjustment quantity is stored as supplied")
}

func TestNegativeOpeningAdjustmentRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.CreateTransaction(context.Background(), TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeAdjustment, Quantity: dec("-1")})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.snapshot().balances)
}

func TestLedgerEntryDefaults(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	id := receive(t, svc, 1, 1, "5", "1")
	txn := repo.snapshot().txns[0]
	require.Equal(t, id, txn.ID)
	require.Equal(t, DefaultReferenceType, txn.ReferenceType)
	require.True(t, txn.TxnDate.Equal(testNow))
	require.Nil(t, txn.LotID)
	require.Empty(t, txn.TransferID)

	when := date(2025, 2, 1)
	_, err := svc.CreateTransaction(ctx, TransactionInput{
		ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("2"),
		ReferenceType: "sales_order", ReferenceID: "SO-9", TxnDate: when, Notes: "picked",
	})
	require.NoError(t, err)
	txn = repo.snapshot().txns[1]
	require.Equal(t, "sales_order", txn.ReferenceType)
	require.Equal(t, "SO-9", txn.ReferenceID)
	require.True(t, txn.TxnDate.Equal(*when))
	require.True(t, txn.Quantity.Equal(dec("2")), "quantity is unsigned for out")
}

func TestValidationRejectsBeforeMutation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	cases := map[string]TransactionInput{
		"missing product":   {WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("1")},
		"missing warehouse": {ProductID: 1, Type: TransactionTypeIn, Quantity: dec("1")},
		"unknown type":      {ProductID: 1, WarehouseID: 1, Type: "return", Quantity: dec("1")},
		"zero quantity":     {ProductID: 1, WarehouseID: 1, Type: TransactionTypeAdjustment},
		"negative receipt":  {ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("-1")},
		"negative issue":    {ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("-1")},
		"negative cost":     {ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("1"), UnitCost: dec("-1")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateTransaction(ctx, in)
			require.ErrorIs(t, err, ErrInvalidInput)
			require.Equal(t, "InvalidInput", ErrorKind(err))
		})
	}
	require.Zero(t, repo.txCalls)
}

func TestPrecisionBeyondStorageRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name     string
		qty      string
		cost     string
		rejected bool
	}{
		{name: "seven quantity places", qty: "0.0000001", cost: "1", rejected: true},
		{name: "nine cost places", qty: "1", cost: "0.123456789", rejected: true},
		{name: "six quantity places", qty: "0.000001", cost: "1"},
		{name: "eight cost places", qty: "1", cost: "0.12345678"},
		{name: "trailing zeros", qty: "2.500000000", cost: "1.0000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTransaction(ctx, TransactionInput{
				ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn,
				Quantity: dec(tc.qty), UnitCost: dec(tc.cost), LotNumber: "L1",
			})
			_, xferErr := svc.Transfer(ctx, TransferInput{
				ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2,
				Quantity: dec(tc.qty), UnitCost: dec(tc.cost),
			})
			if tc.rejected {
				require.ErrorIs(t, err, ErrInvalidInput)
				require.ErrorIs(t, xferErr, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			require.NoError(t, xferErr)
		})
	}

	_, err := svc.UpsertReorderLevel(ctx, ReorderLevelInput{ProductID: 1, WarehouseID: 1, ReorderPoint: dec("0.0000005")})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransferValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 1, Quantity: dec("1")})
	require.ErrorIs(t, err, ErrInvalidWarehousePair)
	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, Quantity: dec("1")})
	require.ErrorIs(t, err, ErrInvalidWarehousePair)
	require.Equal(t, "InvalidWarehousePair", ErrorKind(err))
	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Transfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("1")})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Zero(t, repo.txCalls)
}

func TestTransferInsufficientStockLeavesStateUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	receive(t, svc, 1, 1, "5", "3")
	before := repo.snapshot()

	_, err := svc.Transfer(context.Background(), TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("6")})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, before, repo.snapshot())
}

func TestTransferDefaultsCostToSourceAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	receive(t, svc, 1, 1, "10", "8")
	receive(t, svc, 1, 2, "10", "4")

	_, err := svc.Transfer(context.Background(), TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("10")})
	require.NoError(t, err)

	dst := balanceOf(t, repo, 1, 2)
	require.True(t, dst.OnHand.Equal(dec("20")))
	require.True(t, dst.AvgCost.Equal(dec("6")), "avg cost %s", dst.AvgCost)
	txns := repo.snapshot().txns
	require.True(t, txns[len(txns)-2].UnitCost.Equal(dec("8")))
	require.True(t, txns[len(txns)-1].UnitCost.Equal(dec("8")))
}

func TestTransferInDescendingWarehouseOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	receive(t, svc, 1, 9, "4", "2")

	_, err := svc.Transfer(context.Background(), TransferInput{ProductID: 1, FromWarehouseID: 9, ToWarehouseID: 3, Quantity: dec("4"), ReferenceID: "TO-1"})
	require.NoError(t, err)
	require.True(t, balanceOf(t, repo, 1, 9).OnHand.IsZero())
	require.True(t, balanceOf(t, repo, 1, 3).OnHand.Equal(dec("4")))
	for _, leg := range repo.snapshot().txns[1:] {
		require.Equal(t, "TO-1", leg.ReferenceID)
	}
}

func TestLotReceiptCreatesAndMergesDates(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, TransactionInput{
		ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("5"), UnitCost: dec("1"),
		LotNumber: "B-1", ExpiryDate: date(2025, 4, 1),
	})
	require.NoError(t, err)
	lot := lotByNumber(t, repo, 1, "B-1")
	require.Equal(t, LotStatusActive, lot.Status)
	require.True(t, lot.QuantityAvailable.Equal(dec("5")))
	require.Equal(t, *date(2025, 4, 1), *lot.ExpiryDate)
	require.Equal(t, *date(2025, 3, 10), *lot.ReceivedDate)
	require.Nil(t, lot.ManufactureDate)

	_, err = svc.CreateTransaction(ctx, TransactionInput{
		ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("2"), UnitCost: dec("1"),
		LotNumber: "B-1", ExpiryDate: date(2026, 1, 1), ManufactureDate: date(2025, 1, 2),
	})
	require.NoError(t, err)
	lot = lotByNumber(t, repo, 1, "B-1")
	require.True(t, lot.QuantityAvailable.Equal(dec("7")))
	require.Equal(t, *date(2025, 4, 1), *lot.ExpiryDate, "first non-null date wins")
	require.Equal(t, *date(2025, 1, 2), *lot.ManufactureDate)

	txns := repo.snapshot().txns
	require.NotNil(t, txns[1].LotID)
	require.Equal(t, lot.ID, *txns[1].LotID)
}

func TestLotLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()
	move := func(typ TransactionType, qty string) error {
		_, err := svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: typ, Quantity: dec(qty), UnitCost: dec("2"), LotNumber: "L-7"})
		return err
	}

	require.NoError(t, move(TransactionTypeIn, "5"))
	require.NoError(t, move(TransactionTypeOut, "5"))
	lot := lotByNumber(t, repo, 1, "L-7")
	require.Equal(t, LotStatusExhausted, lot.Status)
	require.True(t, lot.QuantityAvailable.IsZero())

	require.NoError(t, move(TransactionTypeIn, "3"))
	lot = lotByNumber(t, repo, 1, "L-7")
	require.Equal(t, LotStatusActive, lot.Status)
	require.True(t, lot.QuantityAvailable.Equal(dec("3")))
	require.Len(t, repo.snapshot().lots, 1)
}

func TestLotErrorsRollBackBalanceAndLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	receive(t, svc, 1, 1, "10", "1")
	_, err := svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("2"), UnitCost: dec("1"), LotNumber: "A"})
	require.NoError(t, err)
	before := repo.snapshot()

	_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("3"), LotNumber: "A"})
	require.ErrorIs(t, err, ErrInsufficientLotQuantity)
	require.Equal(t, "InsufficientLotQuantity", ErrorKind(err))
	require.Equal(t, before, repo.snapshot())

	_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("1"), LotNumber: "missing"})
	require.ErrorIs(t, err, ErrLotNotFound)
	require.Equal(t, "LotNotFound", ErrorKind(err))

	_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeAdjustment, Quantity: dec("-1"), LotNumber: "missing"})
	require.ErrorIs(t, err, ErrLotNotFound)
	require.Equal(t, before, repo.snapshot())
}

func TestLotIDFromAnotherWarehouseIsNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 2, Type: TransactionTypeIn, Quantity: dec("4"), UnitCost: dec("1"), LotNumber: "X"})
	require.NoError(t, err)
	receive(t, svc, 1, 1, "4", "1")
	foreign := lotByNumber(t, repo, 2, "X")

	_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("1"), LotID: int64Ptr(foreign.ID)})
	require.ErrorIs(t, err, ErrLotNotFound)
}

func TestReceiptWithUnknownLotIDGeneratesNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)

	_, err := svc.CreateTransaction(context.Background(), TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("4"), UnitCost: dec("1"), LotID: int64Ptr(404)})
	require.NoError(t, err)
	lots := repo.snapshot().lots
	require.Len(t, lots, 1)
	for _, lot := range lots {
		require.True(t, strings.HasPrefix(lot.LotNumber, generatedLotPrefix))
		require.Len(t, lot.LotNumber, len(generatedLotPrefix)+32)
	}
}

func TestTransferWithLotCarriesMetadata(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, TransactionInput{
		ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("8"), UnitCost: dec("3"),
		LotNumber: "EXP-1", ExpiryDate: date(2025, 6, 30), ManufactureDate: date(2025, 1, 1), ReceivedDate: date(2025, 2, 1),
	})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("9"), LotNumber: "EXP-1"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	receive(t, svc, 1, 1, "5", "3")
	before := repo.snapshot()
	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("9"), LotNumber: "EXP-1"})
	require.ErrorIs(t, err, ErrInsufficientLotQuantity)
	require.Equal(t, before, repo.snapshot())

	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("1"), LotNumber: "NOPE"})
	require.ErrorIs(t, err, ErrLotNotFound)

	src := lotByNumber(t, repo, 1, "EXP-1")
	res, err := svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("8"), LotID: int64Ptr(src.ID)})
	require.NoError(t, err)

	src = lotByNumber(t, repo, 1, "EXP-1")
	require.Equal(t, LotStatusExhausted, src.Status)
	dst := lotByNumber(t, repo, 2, "EXP-1")
	require.True(t, dst.QuantityAvailable.Equal(dec("8")))
	require.Equal(t, *date(2025, 6, 30), *dst.ExpiryDate)
	require.Equal(t, *date(2025, 1, 1), *dst.ManufactureDate)
	require.Equal(t, *date(2025, 3, 10), *dst.ReceivedDate)

	txns := repo.snapshot().txns
	out, in := txns[len(txns)-2], txns[len(txns)-1]
	require.Equal(t, res.TransferID, out.TransferID)
	require.Equal(t, src.ID, *out.LotID)
	require.Equal(t, dst.ID, *in.LotID)
}

func TestIdempotencyKeys(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdempotency()
	svc := newTestService(repo, nil, idem, nil)
	ctx := context.Background()

	in := TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("1"), UnitCost: dec("1"), IdempotencyKey: "rcv-1"}
	_, err := svc.CreateTransaction(ctx, in)
	require.NoError(t, err)
	_, err = svc.CreateTransaction(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.True(t, balanceOf(t, repo, 1, 1).OnHand.Equal(dec("1")))

	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("5"), IdempotencyKey: "xfer-1"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, []string{"xfer-1"}, idem.deleted, "failed operations release their key")

	_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("1"), IdempotencyKey: "xfer-1"})
	require.NoError(t, err)
}

// abortingRepo cancels the caller's context mid transaction, the way a
// client disconnect or request timeout does.
type abortingRepo struct {
	*memoryRepo
	cancel context.CancelFunc
}

func (r *abortingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.cancel()
	return ctx.Err()
}

func TestIdempotencyKeyReleasedAfterCancellation(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdempotency()
	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("3"), UnitCost: dec("2"), IdempotencyKey: "k1"}
	aborting := newTestService(&abortingRepo{memoryRepo: repo, cancel: cancel}, nil, idem, nil)
	_, err := aborting.CreateTransaction(reqCtx, in)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"k1"}, idem.deleted)
	require.Empty(t, repo.snapshot().txns)

	svc := newTestService(repo, nil, idem, nil)
	_, err = svc.CreateTransaction(context.Background(), in)
	require.NoError(t, err, "retry after an aborted request succeeds")
	require.Len(t, repo.snapshot().txns, 1)
}

func TestAfterCommitSideEffects(t *testing.T) {
	repo := newMemoryRepo()
	audit := &auditRecorder{err: errors.New("audit store down")}
	events := &eventRecorder{err: errors.New("hook failed")}
	svc := newTestService(repo, audit, nil, events)
	ctx := context.Background()

	id, err := svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeIn, Quantity: dec("6"), UnitCost: dec("2"), ActorID: 42})
	require.NoError(t, err, "side effect failures never fail a committed movement")
	res, err := svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: 1, ToWarehouseID: 2, Quantity: dec("2")})
	require.NoError(t, err)

	require.Len(t, audit.logs, 3)
	require.Equal(t, int64(42), audit.logs[0].ActorID)
	require.Equal(t, "inventory:in", audit.logs[0].Action)
	require.Equal(t, "inventory_tx", audit.logs[0].Entity)

	require.Len(t, events.events, 3)
	require.Equal(t, id, events.events[0].LedgerID)
	require.True(t, events.events[0].OnHand.Equal(dec("6")))
	out, in := events.events[1], events.events[2]
	require.Equal(t, res.OutID, out.LedgerID)
	require.True(t, out.Delta.Equal(dec("-2")))
	require.True(t, out.OnHand.Equal(dec("4")))
	require.Equal(t, res.InID, in.LedgerID)
	require.Equal(t, res.TransferID, in.TransferID)
	require.True(t, in.AvgCost.Equal(dec("2")))
}

func TestFailedOperationEmitsNothing(t *testing.T) {
	repo := newMemoryRepo()
	audit := &auditRecorder{}
	events := &eventRecorder{}
	svc := newTestService(repo, audit, nil, events)

	_, err := svc.CreateTransaction(context.Background(), TransactionInput{ProductID: 1, WarehouseID: 1, Type: TransactionTypeOut, Quantity: dec("1")})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, audit.logs)
	require.Empty(t, events.events)
}

func TestUpsertReorderLevel(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	id, err := svc.UpsertReorderLevel(ctx, ReorderLevelInput{ProductID: 1, WarehouseID: 1, ReorderPoint: dec("25"), PreferredStock: dec("100")})
	require.NoError(t, err)
	again, err := svc.UpsertReorderLevel(ctx, ReorderLevelInput{ProductID: 1, WarehouseID: 1, ReorderPoint: dec("30")})
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.True(t, repo.snapshot().levels[pairKey{1, 1}].ReorderPoint.Equal(dec("30")))
	require.Empty(t, repo.snapshot().txns)

	_, err = svc.UpsertReorderLevel(ctx, ReorderLevelInput{ProductID: 1, WarehouseID: 1, SafetyStock: dec("-1")})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.UpsertReorderLevel(ctx, ReorderLevelInput{WarehouseID: 1})
	require.ErrorIs(t, err, ErrInvalidInput)
}

// Random movements must never leave negative stock, and rejected ones must
// leave the store exactly as it was.
func TestRandomMovementsKeepStockNonNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil, nil, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	lots := []string{"", "A", "B"}

	for i := 0; i < 400; i++ {
		before := repo.snapshot()
		qty := decimal.NewFromInt(int64(rng.Intn(20) + 1))
		lot := lots[rng.Intn(len(lots))]
		wh := int64(rng.Intn(3) + 1)
		var err error
		switch rng.Intn(4) {
		case 0:
			_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: wh, Type: TransactionTypeIn, Quantity: qty, UnitCost: decimal.NewFromInt(int64(rng.Intn(5))), LotNumber: lot})
		case 1:
			_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: wh, Type: TransactionTypeOut, Quantity: qty, LotNumber: lot})
		case 2:
			if rng.Intn(2) == 0 {
				qty = qty.Neg()
			}
			_, err = svc.CreateTransaction(ctx, TransactionInput{ProductID: 1, WarehouseID: wh, Type: TransactionTypeAdjustment, Quantity: qty, UnitCost: decimal.NewFromInt(1), LotNumber: lot})
		case 3:
			to := wh%3 + 1
			_, err = svc.Transfer(ctx, TransferInput{ProductID: 1, FromWarehouseID: wh, ToWarehouseID: to, Quantity: qty, LotNumber: lot})
		}

		after := repo.snapshot()
		if err != nil {
			require.NotEmpty(t, ErrorKind(err), "unexpected error %v", err)
			require.Equal(t, before, after)
		}
		for _, b := range after.balances {
			require.False(t, b.OnHand.IsNegative(), "step %d balance %+v", i, b)
			require.False(t, b.AvgCost.IsNegative())
		}
		for _, l := range after.lots {
			require.False(t, l.QuantityAvailable.IsNegative(), "step %d lot %+v", i, l)
			require.Equal(t, lotStatusFor(l.QuantityAvailable), l.Status)
		}
	}
}
