// Package memstore is an in-process implementation of the catalog, cart
// and order stores. Checkout commits lock one mutex per product in
// ascending product id order, so commits over disjoint products run in
// parallel.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
)

var (
	_ port.CheckoutStore   = (*Store)(nil)
	_ port.CartStore       = (*Store)(nil)
	_ port.OrderStore      = (*Store)(nil)
	_ port.ProductsStorage = (*Store)(nil)
)

// Lock order: product commit locks (ascending id), mu, ordersMu, cartMu.
type Store struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	locks    map[string]*sync.Mutex

	ordersMu sync.RWMutex
	orders   map[string]domain.Order

	cartMu sync.Mutex
	carts  map[string]map[string]int
}

func New() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		locks:    make(map[string]*sync.Mutex),
		orders:   make(map[string]domain.Order),
		carts:    make(map[string]map[string]int),
	}
}

func (s *Store) GetProduct(
	ctx context.Context, productID string,
) (domain.Product, error) {
	const op = "Store.GetProduct"

	if err := ctx.Err(); err != nil {
		return domain.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	p, ok := s.products[productID]
	s.mu.RUnlock()
	if !ok {
		return domain.Product{}, fmt.Errorf(
			"%s: %q: %w", op, productID, domain.ErrProductNotFound,
		)
	}
	return p, nil
}

// StoreProducts inserts new products with their stock and refreshes the
// other fields of known ones. The stock of a known product is kept.
func (s *Store) StoreProducts(ctx context.Context, ps []domain.Product) error {
	const op = "Store.StoreProducts"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		if p.ID == "" {
			return fmt.Errorf("%s: empty product id", op)
		}
		if p.Stock < 0 {
			return fmt.Errorf("%s: %q: negative stock %d", op, p.ID, p.Stock)
		}
	}
	for _, p := range ps {
		if cur, ok := s.products[p.ID]; ok {
			p.Stock = cur.Stock
		}
		s.products[p.ID] = p
	}
	return nil
}

func (s *Store) CartLines(
	ctx context.Context, userID string,
) ([]domain.CartLine, error) {
	const op = "Store.CartLines"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	cart := s.carts[userID]
	lines := make([]domain.CartLine, 0, len(cart))
	for _, productID := range slices.Sorted(maps.Keys(cart)) {
		lines = append(lines, domain.CartLine{
			UserID:    userID,
			ProductID: productID,
			Quantity:  cart[productID],
		})
	}
	return lines, nil
}

func (s *Store) AdjustCartLine(
	ctx context.Context, userID, productID string, delta int,
) (int, error) {
	const op = "Store.AdjustCartLine"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if delta == 0 {
		return 0, fmt.Errorf("%s: %w", op, domain.ErrInvalidQuantity)
	}

	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	cart := s.carts[userID]
	qty, ok := cart[productID]
	if !ok && delta < 0 {
		return 0, fmt.Errorf("%s: %w", op, domain.ErrCartLineNotFound)
	}

	qty += delta
	switch {
	case qty > 0:
		if cart == nil {
			cart = make(map[string]int)
			s.carts[userID] = cart
		}
		cart[productID] = qty
	case ok:
		delete(cart, productID)
	}
	return max(qty, 0), nil
}

func (s *Store) RemoveCartLine(
	ctx context.Context, userID, productID string,
) error {
	const op = "Store.RemoveCartLine"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.cartMu.Lock()
	defer s.cartMu.Unlock()

	if _, ok := s.carts[userID][productID]; !ok {
		return fmt.Errorf("%s: %w", op, domain.ErrCartLineNotFound)
	}
	delete(s.carts[userID], productID)
	return nil
}

func (s *Store) GetOrder(
	ctx context.Context, orderID string,
) (domain.Order, error) {
	const op = "Store.GetOrder"

	if err := ctx.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	s.ordersMu.RLock()
	o, ok := s.orders[orderID]
	s.ordersMu.RUnlock()
	if !ok {
		return domain.Order{}, fmt.Errorf(
			"%s: %q: %w", op, orderID, domain.ErrOrderNotFound,
		)
	}
	o.Lines = slices.Clone(o.Lines)
	return o, nil
}

// Orders returns every stored order of the user.
func (s *Store) Orders(userID string) []domain.Order {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			o.Lines = slices.Clone(o.Lines)
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (s *Store) productLock(productID string) *sync.Mutex {
	s.mu.RLock()
	l, ok := s.locks[productID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[productID]; ok {
		return l
	}
	l = new(sync.Mutex)
	s.locks[productID] = l
	return l
}
