package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func (s *Service) validateTransaction(in TransactionInput) error {
	if err := s.checkStruct(in); err != nil {
		return err
	}
	if in.Quantity.IsZero() {
		return fmt.Errorf("%w: quantity must be non zero", ErrInvalidInput)
	}
	if (in.Type == TransactionTypeIn || in.Type == TransactionTypeOut) && in.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must be positive for %s movements", ErrInvalidInput, in.Type)
	}
	if in.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidInput)
	}
	return checkPrecision(in.Quantity, in.UnitCost)
}

func (s *Service) validateTransfer(in TransferInput) error {
	if in.FromWarehouseID <= 0 || in.ToWarehouseID <= 0 {
		return fmt.Errorf("%w: source and destination warehouse required", ErrInvalidWarehousePair)
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return fmt.Errorf("%w: both are warehouse %d", ErrInvalidWarehousePair, in.FromWarehouseID)
	}
	if err := s.checkStruct(in); err != nil {
		return err
	}
	if !in.Quantity.IsPositive() {
		return fmt.Errorf("%w: transfer quantity must be positive", ErrInvalidInput)
	}
	if in.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidInput)
	}
	return checkPrecision(in.Quantity, in.UnitCost)
}

func (s *Service) validateReorderLevel(in ReorderLevelInput) error {
	if err := s.checkStruct(in); err != nil {
		return err
	}
	for name, v := range map[string]decimal.Decimal{
		"reorder point":   in.ReorderPoint,
		"safety stock":    in.SafetyStock,
		"preferred stock": in.PreferredStock,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidInput, name)
		}
		if !fitsScale(v, quantityScale) {
			return fmt.Errorf("%w: %s allows at most %d decimal places", ErrInvalidInput, name, quantityScale)
		}
	}
	return nil
}

// checkPrecision rejects values that storage would round.
func checkPrecision(quantity, unitCost decimal.Decimal) error {
	if !fitsScale(quantity, quantityScale) {
		return fmt.Errorf("%w: quantity allows at most %d decimal places", ErrInvalidInput, quantityScale)
	}
	if !fitsScale(unitCost, costScale) {
		return fmt.Errorf("%w: unit cost allows at most %d decimal places", ErrInvalidInput, costScale)
	}
	return nil
}

func fitsScale(v decimal.Decimal, places int32) bool {
	return v.Equal(v.Truncate(places))
}

func (s *Service) checkStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}
