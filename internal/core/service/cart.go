package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/niksmo/storefront/internal/core/domain"
)

// Cart prices the user's cart lines at current catalog prices. Lines whose
// product left the catalog are left out.
func (s *Service) Cart(ctx context.Context, userID string) (domain.Cart, error) {
	const op = "Service.Cart"
	log := slog.With("op", op, "userID", userID)

	if err := ctx.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("%s: %w", op, err)
	}

	lines, err := s.carts.CartLines(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("%s: %w", op, err)
	}

	cart := domain.Cart{
		UserID: userID,
		Items:  make([]domain.CartItem, 0, len(lines)),
	}
	for _, l := range lines {
		p, err := s.checkout.GetProduct(ctx, l.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			log.Warn("cart line product not found", "productID", l.ProductID)
			continue
		}
		if err != nil {
			return domain.Cart{}, fmt.Errorf("%s: %w", op, err)
		}
		item := domain.CartItem{Product: p, Quantity: l.Quantity}
		cart.Items = append(cart.Items, item)
		cart.Total += item.Subtotal()
	}
	return cart, nil
}

// AddToCart puts one unit of the product in the cart, or one more when the
// line exists. Sold-out products are refused with [domain.ErrOutOfStock].
func (s *Service) AddToCart(ctx context.Context, userID, productID string) error {
	const op = "Service.AddToCart"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.checkout.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !p.InStock() {
		return fmt.Errorf("%s: %q: %w", op, productID, domain.ErrOutOfStock)
	}

	if _, err := s.carts.AdjustCartLine(ctx, userID, productID, 1); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IncreaseCartItem adds one unit to an existing line while the catalog
// holds enough stock.
func (s *Service) IncreaseCartItem(
	ctx context.Context, userID, productID string,
) error {
	const op = "Service.IncreaseCartItem"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	qty, err := s.lineQuantity(ctx, userID, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.checkout.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if qty >= p.Stock {
		return fmt.Errorf("%s: %w", op, &domain.InsufficientStockError{
			ProductID: productID,
			Available: p.Stock,
			Requested: qty + 1,
		})
	}

	if _, err := s.carts.AdjustCartLine(ctx, userID, productID, 1); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DecreaseCartItem takes one unit off the line, removing it at zero.
func (s *Service) DecreaseCartItem(
	ctx context.Context, userID, productID string,
) error {
	const op = "Service.DecreaseCartItem"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.carts.AdjustCartLine(ctx, userID, productID, -1); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) RemoveCartItem(
	ctx context.Context, userID, productID string,
) error {
	const op = "Service.RemoveCartItem"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.carts.RemoveCartLine(ctx, userID, productID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) lineQuantity(
	ctx context.Context, userID, productID string,
) (int, error) {
	lines, err := s.carts.CartLines(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, l := range lines {
		if l.ProductID == productID {
			return l.Quantity, nil
		}
	}
	return 0, domain.ErrCartLineNotFound
}
