package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

type bumpRecorder struct {
	bumps int
	err   error
}

func (b *bumpRecorder) Bump(context.Context) error {
	b.bumps++
	return b.err
}

type movementRecorder struct {
	labels     []string
	quantities []float64
}

func (m *movementRecorder) ObserveMovement(txnType string, quantity float64) {
	m.labels = append(m.labels, txnType)
	m.quantities = append(m.quantities, quantity)
}

func TestHandleMovementPostedBumpsCacheAndCounts(t *testing.T) {
	cache := &bumpRecorder{}
	metrics := &movementRecorder{}
	hooks := NewHooks(cache, metrics, nil)

	err := hooks.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{
		LedgerID: 7,
		Type:     inventory.TransactionTypeAdjustment,
		Delta:    decimal.RequireFromString("-2.5"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, cache.bumps)
	require.Equal(t, []string{"adjustment"}, metrics.labels)
	require.Equal(t, []float64{2.5}, metrics.quantities)
}

func TestHandleMovementPostedLabelsTransferLegs(t *testing.T) {
	metrics := &movementRecorder{}
	hooks := NewHooks(nil, metrics, nil)

	err := hooks.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{
		LedgerID:   9,
		TransferID: "c0ffee",
		Type:       inventory.TransactionTypeOut,
		Delta:      decimal.NewFromInt(-5),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"transfer_out"}, metrics.labels)
}

func TestHandleMovementPostedRequiresLedgerID(t *testing.T) {
	cache := &bumpRecorder{}
	hooks := NewHooks(cache, nil, nil)
	err := hooks.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{})
	require.Error(t, err)
	require.Zero(t, cache.bumps)
}

func TestHandleMovementPostedSurfacesBumpFailure(t *testing.T) {
	boom := errors.New("redis down")
	hooks := NewHooks(&bumpRecorder{err: boom}, nil, nil)
	err := hooks.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{LedgerID: 1})
	require.ErrorIs(t, err, boom)
}
