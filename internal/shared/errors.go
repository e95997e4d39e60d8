package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the ledger and both state machines. Handlers map
// these onto HTTP responses in platform/httpx.
var (
	// ErrNotFound indicates a referenced product/order/transfer/franchise does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates the requested quantity exceeds what is available.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition indicates the requested state change is not reachable.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidQuantity indicates a quantity that would violate a stock invariant.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidState indicates a defensive invariant violation, treated as an internal bug.
	ErrInvalidState = errors.New("invalid ledger state")
	// ErrImmutableState indicates a mutation attempt on a delivered order.
	ErrImmutableState = errors.New("record is immutable")
	// ErrConflict indicates a concurrent write detected by the store; retry the whole transition.
	ErrConflict = errors.New("concurrent write conflict")
	// ErrNestedTransaction indicates a unit of work was opened inside another one.
	ErrNestedTransaction = errors.New("nested transaction not allowed")
	// ErrForbidden indicates the caller's franchise scope does not cover the target.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates a malformed or rejected request payload.
	ErrValidation = errors.New("validation failed")
)

// InsufficientStockError carries the quantity actually available so clients
// can react without a follow-up read.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TransitionError reports an unreachable state change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// UserSafeMessage returns a message suitable for API clients. Defensive
// invariant violations are logged by the caller and surfaced generically.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidQuantity):
		return "internal inventory error"
	case err != nil:
		return err.Error()
	default:
		return ""
	}
}
