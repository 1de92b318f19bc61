package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
	"github.com/niksmo/storefront/pkg/retry"
)

// Checkout outcomes reported to the observer.
const (
	OutcomeCompleted         = "completed"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInvalidQuantity   = "invalid_quantity"
	OutcomeNotFound          = "not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeRaceLost          = "race_lost"
	OutcomeError             = "error"
)

// Checkout turns the request lines into an order. It either decrements the
// stock of every product, records the order and clears the cart lines, or
// changes nothing.
//
// Stock is validated first and written later, conditionally on the
// validated level. When another checkout got in between, the attempt is
// repeated from validation up to the configured number of attempts before
// [domain.ErrStockRaceLost] is returned.
func (s *Service) Checkout(
	ctx context.Context, req domain.CheckoutRequest,
) (order domain.Order, err error) {
	const op = "Service.Checkout"
	log := slog.With("op", op, "userID", req.UserID)

	if err := ctx.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	defer func() {
		s.observer.OnCheckout(outcome(err), time.Since(start))
	}()

	lines, err := domain.NormalizeLines(req.UserID, req.Lines)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	attempt := 0
	order, err = retry.DoWithResult(ctx, s.retryConfig(),
		func() (domain.Order, error) {
			attempt++
			o, err := s.checkoutAttempt(ctx, req, lines)
			if isRaceLost(err) {
				s.observer.OnStockRaceLost()
				log.Debug("stock changed during checkout", "attempt", attempt, "err", err)
			}
			return o, err
		},
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("order placed",
		"orderID", order.ID, "lines", len(order.Lines), "total", order.TotalPrice,
	)
	return order, nil
}

func (s *Service) checkoutAttempt(
	ctx context.Context, req domain.CheckoutRequest, lines []domain.CartLine,
) (domain.Order, error) {
	products, err := s.validateStock(ctx, lines)
	if err != nil {
		return domain.Order{}, err
	}

	order := newOrder(req, lines, products, s.clock())
	productIDs := make([]string, len(lines))
	for i, l := range lines {
		productIDs[i] = l.ProductID
	}

	err = s.checkout.Atomically(ctx, productIDs, func(tx port.CheckoutTx) error {
		for i, l := range lines {
			err := tx.ConditionalDecrementStock(
				ctx, l.ProductID, l.Quantity, products[i].Stock,
			)
			if errors.Is(err, domain.ErrStockChanged) {
				return fmt.Errorf("%w: %w", domain.ErrStockRaceLost, err)
			}
			if err != nil {
				return err
			}
		}

		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id

		return tx.ConsumeCartLines(ctx, req.UserID, lines)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// validateStock reads every line product. It returns them in line order,
// or every shortfall joined together.
func (s *Service) validateStock(
	ctx context.Context, lines []domain.CartLine,
) ([]domain.Product, error) {
	products := make([]domain.Product, len(lines))
	var shortfalls []error
	for i, l := range lines {
		p, err := s.checkout.GetProduct(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Stock < l.Quantity {
			shortfalls = append(shortfalls, &domain.InsufficientStockError{
				ProductID: p.ID,
				Available: p.Stock,
				Requested: l.Quantity,
			})
		}
		products[i] = p
	}
	if len(shortfalls) != 0 {
		return nil, errors.Join(shortfalls...)
	}
	return products, nil
}

func newOrder(
	req domain.CheckoutRequest,
	lines []domain.CartLine,
	products []domain.Product,
	now time.Time,
) domain.Order {
	o := domain.Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Status:    domain.OrderStatusCompleted,
		CreatedAt: now.UTC(),
		Shipping:  req.Shipping,
		Lines:     make([]domain.OrderLine, len(lines)),
	}
	for i, l := range lines {
		o.Lines[i] = domain.OrderLine{
			OrderID:         o.ID,
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			PriceAtPurchase: products[i].Price,
		}
	}
	o.TotalPrice = o.LinesTotal()
	return o
}

// CheckoutCart checks out the current content of the user's cart.
func (s *Service) CheckoutCart(
	ctx context.Context, userID string, shipping domain.Shipping,
) (domain.Order, error) {
	const op = "Service.CheckoutCart"

	if err := ctx.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	lines, err := s.carts.CartLines(ctx, userID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	o, err := s.Checkout(ctx, domain.CheckoutRequest{
		UserID:   userID,
		Lines:    lines,
		Shipping: shipping,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// PlaceOrder checks out the user's cart and publishes the placed order.
// A failed publish is logged and does not fail the order.
func (s *Service) PlaceOrder(
	ctx context.Context, userID string, shipping domain.Shipping,
) (domain.OrderSummary, error) {
	const op = "Service.PlaceOrder"
	log := slog.With("op", op)

	o, err := s.CheckoutCart(ctx, userID, shipping)
	if err != nil {
		return domain.OrderSummary{}, fmt.Errorf("%s: %w", op, err)
	}

	if s.events != nil {
		if err := s.events.ProduceOrderPlaced(ctx, o); err != nil {
			log.Error("failed to publish placed order",
				"orderID", o.ID, "err", err,
			)
		}
	}
	return o.Summary(), nil
}

func (s *Service) Order(
	ctx context.Context, orderID string,
) (domain.Order, error) {
	const op = "Service.Order"

	if err := ctx.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

func isRaceLost(err error) bool {
	return errors.Is(err, domain.ErrStockRaceLost)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, domain.ErrEmptyCart):
		return OutcomeEmptyCart
	case errors.Is(err, domain.ErrInvalidQuantity):
		return OutcomeInvalidQuantity
	case errors.Is(err, domain.ErrProductNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case isRaceLost(err):
		return OutcomeRaceLost
	default:
		return OutcomeError
	}
}
