package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
)

// Atomically locks the given products in ascending id order and runs fn.
// Writes made through the tx are staged and applied only when fn
// returns nil.
func (s *Store) Atomically(
	ctx context.Context, productIDs []string, fn func(port.CheckoutTx) error,
) error {
	const op = "Store.Atomically"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	for _, id := range ids {
		s.productLock(id).Lock()
	}
	defer func() {
		for i := len(ids) - 1; i >= 0; i-- {
			s.productLock(ids[i]).Unlock()
		}
	}()

	t := &tx{
		s:      s,
		locked: ids,
		stock:  make(map[string]int, len(ids)),
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t.apply()
	return nil
}

type consumedLines struct {
	userID string
	lines  []domain.CartLine
}

type tx struct {
	s        *Store
	locked   []string
	stock    map[string]int
	orders   []domain.Order
	consumed []consumedLines
}

func (t *tx) ConditionalDecrementStock(
	ctx context.Context, productID string, amount, expected int,
) error {
	const op = "tx.ConditionalDecrementStock"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := slices.BinarySearch(t.locked, productID); !ok {
		return fmt.Errorf("%s: product %q is not locked by this tx", op, productID)
	}
	if amount <= 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidQuantity)
	}

	cur, staged := t.stock[productID]
	if !staged {
		t.s.mu.RLock()
		p, ok := t.s.products[productID]
		t.s.mu.RUnlock()
		if !ok {
			return fmt.Errorf(
				"%s: %q: %w", op, productID, domain.ErrProductNotFound,
			)
		}
		cur = p.Stock
	}

	if cur != expected {
		return fmt.Errorf(
			"%s: %q: expected %d, found %d: %w",
			op, productID, expected, cur, domain.ErrStockChanged,
		)
	}
	if cur < amount {
		return fmt.Errorf("%s: %w", op, &domain.InsufficientStockError{
			ProductID: productID,
			Available: cur,
			Requested: amount,
		})
	}

	t.stock[productID] = cur - amount
	return nil
}

func (t *tx) CreateOrder(ctx context.Context, o domain.Order) (string, error) {
	const op = "tx.CreateOrder"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	t.s.ordersMu.RLock()
	_, exists := t.s.orders[o.ID]
	t.s.ordersMu.RUnlock()
	if exists {
		return "", fmt.Errorf("%s: order %q already exists", op, o.ID)
	}

	lines := make([]domain.OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		l.OrderID = o.ID
		lines[i] = l
	}
	o.Lines = lines

	t.orders = append(t.orders, o)
	return o.ID, nil
}

func (t *tx) ConsumeCartLines(
	ctx context.Context, userID string, lines []domain.CartLine,
) error {
	const op = "tx.ConsumeCartLines"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("%s: %q: %w", op, l.ProductID, domain.ErrInvalidQuantity)
		}
	}

	t.consumed = append(t.consumed, consumedLines{
		userID: userID,
		lines:  slices.Clone(lines),
	})
	return nil
}

// apply publishes the staged writes under all three store locks, so a
// reader never sees the stock moved without the order and the cart.
func (t *tx) apply() {
	s := t.s

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()
	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	for id, stock := range t.stock {
		p := s.products[id]
		p.Stock = stock
		s.products[id] = p
	}

	for _, o := range t.orders {
		s.orders[o.ID] = o
	}

	for _, c := range t.consumed {
		cart := s.carts[c.userID]
		for _, l := range c.lines {
			qty, ok := cart[l.ProductID]
			if !ok {
				continue
			}
			if qty -= l.Quantity; qty > 0 {
				cart[l.ProductID] = qty
				continue
			}
			delete(cart, l.ProductID)
		}
	}
}
