package domain

import (
	"cmp"
	"slices"
)

type CartLine struct {
	UserID    string
	ProductID string
	Quantity  int
}

type CartItem struct {
	Product  Product
	Quantity int
}

func (i CartItem) Subtotal() float64 {
	return float64(i.Quantity) * i.Product.Price
}

// A Cart is a priced view of the user's cart lines at current catalog prices.
type Cart struct {
	UserID string
	Items  []CartItem
	Total  float64
}

// NormalizeLines validates quantities, merges duplicate products and
// returns the lines sorted by product id.
func NormalizeLines(userID string, lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	merged := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		merged[l.ProductID] += l.Quantity
	}

	out := make([]CartLine, 0, len(merged))
	for productID, qty := range merged {
		out = append(out, CartLine{
			UserID:    userID,
			ProductID: productID,
			Quantity:  qty,
		})
	}
	slices.SortFunc(out, func(a, b CartLine) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return out, nil
}
