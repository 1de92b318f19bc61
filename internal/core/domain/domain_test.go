package domain_test

import (
	"errors"
	"testing"

	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLines(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		_, err := domain.NormalizeLines("u1", nil)
		require.ErrorIs(t, err, domain.ErrEmptyCart)
	})

	t.Run("NonPositiveQuantity", func(t *testing.T) {
		_, err := domain.NormalizeLines("u1", []domain.CartLine{
			{ProductID: "A", Quantity: 1},
			{ProductID: "B", Quantity: -2},
		})
		require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("MergedAndSorted", func(t *testing.T) {
		got, err := domain.NormalizeLines("u1", []domain.CartLine{
			{ProductID: "C", Quantity: 1},
			{ProductID: "A", Quantity: 2},
			{ProductID: "C", Quantity: 4},
		})
		require.NoError(t, err)
		assert.Equal(t, []domain.CartLine{
			{UserID: "u1", ProductID: "A", Quantity: 2},
			{UserID: "u1", ProductID: "C", Quantity: 5},
		}, got)
	})
}

func TestOrderTotals(t *testing.T) {
	o := domain.Order{
		ID: "o1",
		Lines: []domain.OrderLine{
			{ProductID: "A", Quantity: 3, PriceAtPurchase: 0.1},
			{ProductID: "B", Quantity: 1, PriceAtPurchase: 19.99},
		},
	}
	o.TotalPrice = o.LinesTotal()

	assert.InDelta(t, 20.29, o.TotalPrice, 1e-9)
	assert.True(t, o.TotalConsistent())
	assert.Equal(t, domain.OrderSummary{ID: "o1", Total: o.TotalPrice, LineCount: 2}, o.Summary())

	o.TotalPrice += 0.01
	assert.False(t, o.TotalConsistent())
}

func TestInsufficientStockError(t *testing.T) {
	err := error(&domain.InsufficientStockError{ProductID: "B", Available: 0, Requested: 1})
	joined := errors.Join(err, errors.New("other"))

	assert.ErrorIs(t, joined, domain.ErrInsufficientStock)
	assert.EqualError(t, err,
		`insufficient stock for product "B": available 0, requested 1`)
}

func TestOrderStatusValid(t *testing.T) {
	assert.True(t, domain.OrderStatusCompleted.Valid())
	assert.False(t, domain.OrderStatus("Shipped").Valid())
}
