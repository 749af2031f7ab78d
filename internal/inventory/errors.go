package inventory

import "errors"

var (
	// ErrInvalidInput covers malformed ids, types and quantities.
	ErrInvalidInput = errors.New("inventory: invalid input")
	// ErrInsufficientStock triggered when a movement would drive on-hand negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInsufficientLotQuantity triggered when a lot cannot cover the movement.
	ErrInsufficientLotQuantity = errors.New("inventory: insufficient lot quantity")
	// ErrLotNotFound indicates a decrement against a lot that does not exist.
	ErrLotNotFound = errors.New("inventory: lot not found")
	// ErrInvalidWarehousePair indicates a missing or identical transfer endpoint.
	ErrInvalidWarehousePair = errors.New("inventory: source and destination warehouse must differ")
	// ErrConcurrentUpdate indicates the movement lost a race with another one
	// and may be retried as is.
	ErrConcurrentUpdate = errors.New("inventory: concurrent update, retry")
)

// ErrorKind returns the tag reported to callers for a known engine error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrInsufficientStock):
		return "InsufficientStock"
	case errors.Is(err, ErrInsufficientLotQuantity):
		return "InsufficientLotQuantity"
	case errors.Is(err, ErrLotNotFound):
		return "LotNotFound"
	case errors.Is(err, ErrInvalidWarehousePair):
		return "InvalidWarehousePair"
	case errors.Is(err, ErrConcurrentUpdate):
		return "ConcurrentUpdate"
	}
	return ""
}
