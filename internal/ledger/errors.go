package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key or product doesn't exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrInsufficientStock is matched by InsufficientStockError.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")

	// ErrInvalidQuantity is returned for quantities outside the accepted range.
	ErrInvalidQuantity = errors.New("ledger: invalid quantity")

	// ErrOverflow is returned when a counter cannot grow past math.MaxInt64.
	ErrOverflow = errors.New("ledger: overflow")
)

// InsufficientStockError is returned when a reservation exceeds the
// available stock. The ledger is left unchanged.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientStock) hold.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsInsufficientStock returns true if the error is an insufficient stock error.
// Uses errors.As to handle wrapped errors.
func IsInsufficientStock(err error) bool {
	var se *InsufficientStockError
	return errors.As(err, &se)
}

// Outcome cases reported by Case.
const (
	CaseSuccess           = "Success"
	CaseInsufficientStock = "InsufficientStock"
	CaseNotFound          = "NotFound"
	CaseInvalidQuantity   = "InvalidQuantity"
	CaseOverflow          = "Overflow"
	CaseError             = "Error"
)

// Case classifies the outcome of a ledger operation.
func Case(err error) string {
	switch {
	case err == nil:
		return CaseSuccess
	case errors.Is(err, ErrInsufficientStock):
		return CaseInsufficientStock
	case errors.Is(err, ErrNotFound):
		return CaseNotFound
	case errors.Is(err, ErrInvalidQuantity):
		return CaseInvalidQuantity
	case errors.Is(err, ErrOverflow):
		return CaseOverflow
	default:
		return CaseError
	}
}
