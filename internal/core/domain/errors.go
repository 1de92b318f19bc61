package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrCartLineNotFound  = errors.New("cart line not found")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStockChanged is returned by a store when a conditional stock
	// decrement finds a stock level other than the expected one.
	ErrStockChanged = errors.New("stock changed")

	// ErrStockRaceLost is returned by checkout when a concurrent checkout
	// changed the stock between validation and commit.
	ErrStockRaceLost = errors.New("stock race lost")

	ErrUnknownProduct   = errors.New("product is absent from similarity index")
	ErrIndexUnavailable = errors.New("similarity index is unavailable")
)

// An InsufficientStockError reports a cart line that asks for more
// units than the catalog holds.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf(
		"insufficient stock for product %q: available %d, requested %d",
		e.ProductID, e.Available, e.Requested,
	)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
