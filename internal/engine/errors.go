package engine

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation")
	ErrInvalidQuantity   = fmt.Errorf("quantity must be greater than zero: %w", ErrValidation)
	ErrOutOfStock        = fmt.Errorf("product out of stock: %w", ErrValidation)
	ErrInsufficientStock = fmt.Errorf("insufficient stock: %w", ErrValidation)
	ErrItemNotFound      = fmt.Errorf("item not in cart: %w", ErrValidation)
	ErrNotLoggedIn       = errors.New("not logged in")
	// ErrNothingMigrated means no anonymous item reached the user cart.
	ErrNothingMigrated = errors.New("no item migrated")
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindConflict
	KindTransient
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is returned by cart operations that did not take effect.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the failure class of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
