package integration

import "github.com/odyssey-erp/odyssey-stock/internal/inventory"

// movementLabel separates transfer legs from plain receipts and issues.
func movementLabel(evt inventory.MovementPostedEvent) string {
	if evt.TransferID != "" {
		return "transfer_" + string(evt.Type)
	}
	return string(evt.Type)
}

func movedQuantity(evt inventory.MovementPostedEvent) float64 {
	return evt.Delta.Abs().InexactFloat64()
}
