package inventory

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultReferenceType is stamped on movements posted without a reference.
	DefaultReferenceType = "manual"
	// ReferenceTypeTransfer tags both legs of a transfer.
	ReferenceTypeTransfer = "transfer"
	// DefaultExpiryHorizonDays bounds the expiring-lots alert.
	DefaultExpiryHorizonDays = 45
	// DefaultLedgerLimit caps ledger reads without an explicit limit.
	DefaultLedgerLimit = 200
	// MaxLedgerLimit caps any ledger read.
	MaxLedgerLimit = 5000

	generatedLotPrefix = "LOT-"
)

// costScale is the precision kept for average costs.
const costScale int32 = 8

// quantityScale is the precision of stored quantities.
const quantityScale int32 = 6

func generateLotNumber() string {
	return generatedLotPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func referenceTypeOrDefault(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return DefaultReferenceType
	}
	return ref
}
