package port

import (
	"context"
	"time"

	"github.com/niksmo/storefront/internal/core/domain"
)

// Inbound ports.

type ProductViewer interface {
	ProductDetail(ctx context.Context, productID string) (domain.ProductDetail, error)
}

type CartManager interface {
	Cart(ctx context.Context, userID string) (domain.Cart, error)
	AddToCart(ctx context.Context, userID, productID string) error
	IncreaseCartItem(ctx context.Context, userID, productID string) error
	DecreaseCartItem(ctx context.Context, userID, productID string) error
	RemoveCartItem(ctx context.Context, userID, productID string) error
}

type OrderPlacer interface {
	PlaceOrder(
		ctx context.Context, userID string, shipping domain.Shipping,
	) (domain.OrderSummary, error)
}

type OrderGetter interface {
	Order(ctx context.Context, orderID string) (domain.Order, error)
}

type ProductsSaver interface {
	SaveProducts(context.Context, []domain.Product) error
}

// Outbound ports.

type CatalogStore interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// A CheckoutTx is the write side of a checkout commit. Nothing done
// through it is visible to other transactions before the enclosing
// [CheckoutStore.Atomically] call returns nil.
type CheckoutTx interface {
	// ConditionalDecrementStock subtracts amount from the product stock
	// only if the stock still equals expected. Otherwise it returns
	// [domain.ErrStockChanged].
	ConditionalDecrementStock(
		ctx context.Context, productID string, amount, expected int,
	) error
	CreateOrder(ctx context.Context, order domain.Order) (string, error)
	// ConsumeCartLines subtracts the bought quantities from the user's cart
	// lines and removes the lines that drop to zero. Lines absent from the
	// cart are ignored; units added to the cart after the snapshot stay.
	ConsumeCartLines(ctx context.Context, userID string, lines []domain.CartLine) error
}

type CheckoutStore interface {
	CatalogStore

	// Atomically runs fn as one all-or-nothing unit. productIDs names every
	// product fn may decrement; the store serializes units that share a
	// product and lets disjoint units run in parallel.
	Atomically(
		ctx context.Context, productIDs []string, fn func(CheckoutTx) error,
	) error
}

type CartStore interface {
	CartLines(ctx context.Context, userID string) ([]domain.CartLine, error)

	// AdjustCartLine adds delta to the line quantity, creating the line
	// when absent and removing it when the quantity drops to zero.
	// It returns the resulting quantity.
	AdjustCartLine(
		ctx context.Context, userID, productID string, delta int,
	) (int, error)
	RemoveCartLine(ctx context.Context, userID, productID string) error
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type ProductsStorage interface {
	StoreProducts(context.Context, []domain.Product) error
}

type SimilarityIndex interface {
	TopK(productID string, k int) ([]domain.ScoredProduct, error)
}

type OrderEventsProducer interface {
	ProduceOrderPlaced(context.Context, domain.Order) error
}

type CheckoutObserver interface {
	OnCheckout(outcome string, d time.Duration)
	OnStockRaceLost()
	OnSubstitutes(n int)
}
