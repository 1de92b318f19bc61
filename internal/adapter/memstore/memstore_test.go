package memstore_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/niksmo/storefront/internal/adapter/memstore"
	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newStore(t *testing.T, ps ...domain.Product) *memstore.Store {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.StoreProducts(t.Context(), ps))
	return s
}

func stockOf(t *testing.T, s *memstore.Store, productID string) int {
	t.Helper()
	p, err := s.GetProduct(t.Context(), productID)
	require.NoError(t, err)
	return p.Stock
}

func TestStoreProducts(t *testing.T) {
	s := newStore(t, domain.Product{ID: "A", Name: "Lamp", Price: 10, Stock: 4})

	t.Run("NewProductKeepsStock", func(t *testing.T) {
		p, err := s.GetProduct(t.Context(), "A")
		require.NoError(t, err)
		assert.Equal(t, "Lamp", p.Name)
		assert.Equal(t, 4, p.Stock)
	})

	t.Run("UpdateNeverOverwritesStock", func(t *testing.T) {
		err := s.StoreProducts(t.Context(), []domain.Product{
			{ID: "A", Name: "Desk lamp", Price: 12, Stock: 100},
		})
		require.NoError(t, err)

		p, err := s.GetProduct(t.Context(), "A")
		require.NoError(t, err)
		assert.Equal(t, "Desk lamp", p.Name)
		assert.Equal(t, 12.0, p.Price)
		assert.Equal(t, 4, p.Stock)
	})

	t.Run("RejectsNegativeStock", func(t *testing.T) {
		err := s.StoreProducts(t.Context(), []domain.Product{{ID: "B", Stock: -1}})
		require.Error(t, err)
		_, err = s.GetProduct(t.Context(), "B")
		require.ErrorIs(t, err, domain.ErrProductNotFound)
	})
}

func TestCartLines(t *testing.T) {
	s := memstore.New()
	ctx := t.Context()

	qty, err := s.AdjustCartLine(ctx, "u1", "B", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, qty)

	qty, err = s.AdjustCartLine(ctx, "u1", "B", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)

	_, err = s.AdjustCartLine(ctx, "u1", "A", 1)
	require.NoError(t, err)

	lines, err := s.CartLines(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{
		{UserID: "u1", ProductID: "A", Quantity: 1},
		{UserID: "u1", ProductID: "B", Quantity: 3},
	}, lines)

	t.Run("DropsLineAtZero", func(t *testing.T) {
		qty, err := s.AdjustCartLine(ctx, "u1", "A", -1)
		require.NoError(t, err)
		assert.Zero(t, qty)

		lines, err := s.CartLines(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, lines, 1)
	})

	t.Run("DecreaseMissingLine", func(t *testing.T) {
		_, err := s.AdjustCartLine(ctx, "u1", "Z", -1)
		require.ErrorIs(t, err, domain.ErrCartLineNotFound)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, s.RemoveCartLine(ctx, "u1", "B"))
		err := s.RemoveCartLine(ctx, "u1", "B")
		require.ErrorIs(t, err, domain.ErrCartLineNotFound)

		lines, err := s.CartLines(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, lines)
	})
}

func TestAtomically(t *testing.T) {
	order := domain.Order{
		ID:         "o1",
		UserID:     "u1",
		TotalPrice: 20,
		Status:     domain.OrderStatusCompleted,
		Lines: []domain.OrderLine{
			{ProductID: "A", Quantity: 2, PriceAtPurchase: 10},
		},
	}

	t.Run("CommitsAllWrites", func(t *testing.T) {
		s := newStore(t, domain.Product{ID: "A", Price: 10, Stock: 5})
		_, err := s.AdjustCartLine(t.Context(), "u1", "A", 2)
		require.NoError(t, err)

		err = s.Atomically(t.Context(), []string{"A"}, func(tx port.CheckoutTx) error {
			if err := tx.ConditionalDecrementStock(t.Context(), "A", 2, 5); err != nil {
				return err
			}
			if _, err := tx.CreateOrder(t.Context(), order); err != nil {
				return err
			}
			return tx.ConsumeCartLines(t.Context(), "u1", []domain.CartLine{
				{UserID: "u1", ProductID: "A", Quantity: 2},
			})
		})
		require.NoError(t, err)

		assert.Equal(t, 3, stockOf(t, s, "A"))

		got, err := s.GetOrder(t.Context(), "o1")
		require.NoError(t, err)
		assert.Equal(t, "o1", got.Lines[0].OrderID)
		assert.Equal(t, 10.0, got.Lines[0].PriceAtPurchase)

		lines, err := s.CartLines(t.Context(), "u1")
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("FailureLeavesNoTrace", func(t *testing.T) {
		s := newStore(t,
			domain.Product{ID: "A", Price: 10, Stock: 5},
			domain.Product{ID: "B", Price: 1, Stock: 1},
		)
		_, err := s.AdjustCartLine(t.Context(), "u1", "A", 2)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.Atomically(t.Context(), []string{"B", "A"}, func(tx port.CheckoutTx) error {
			require.NoError(t, tx.ConditionalDecrementStock(t.Context(), "A", 2, 5))
			_, err := tx.CreateOrder(t.Context(), order)
			require.NoError(t, err)
			require.NoError(t, tx.ConsumeCartLines(t.Context(), "u1", []domain.CartLine{
				{UserID: "u1", ProductID: "A", Quantity: 2},
			}))
			return boom
		})
		require.ErrorIs(t, err, boom)

		assert.Equal(t, 5, stockOf(t, s, "A"))
		_, err = s.GetOrder(t.Context(), "o1")
		require.ErrorIs(t, err, domain.ErrOrderNotFound)
		lines, err := s.CartLines(t.Context(), "u1")
		require.NoError(t, err)
		assert.Len(t, lines, 1)
	})

	t.Run("ConsumesOnlyBoughtUnits", func(t *testing.T) {
		s := newStore(t,
			domain.Product{ID: "A", Price: 10, Stock: 9},
			domain.Product{ID: "B", Price: 1, Stock: 9},
		)
		_, err := s.AdjustCartLine(t.Context(), "u1", "A", 5)
		require.NoError(t, err)
		_, err = s.AdjustCartLine(t.Context(), "u1", "B", 1)
		require.NoError(t, err)

		err = s.Atomically(t.Context(), []string{"A", "B", "C"}, func(tx port.CheckoutTx) error {
			return tx.ConsumeCartLines(t.Context(), "u1", []domain.CartLine{
				{UserID: "u1", ProductID: "A", Quantity: 2},
				{UserID: "u1", ProductID: "B", Quantity: 3},
				{UserID: "u1", ProductID: "C", Quantity: 1},
			})
		})
		require.NoError(t, err)

		lines, err := s.CartLines(t.Context(), "u1")
		require.NoError(t, err)
		assert.Equal(t, []domain.CartLine{
			{UserID: "u1", ProductID: "A", Quantity: 3},
		}, lines)
	})

	t.Run("ConsumeRejectsNonPositive", func(t *testing.T) {
		s := newStore(t, domain.Product{ID: "A", Stock: 1})
		err := s.Atomically(t.Context(), []string{"A"}, func(tx port.CheckoutTx) error {
			return tx.ConsumeCartLines(t.Context(), "u1", []domain.CartLine{
				{UserID: "u1", ProductID: "A", Quantity: 0},
			})
		})
		require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("StockChanged", func(t *testing.T) {
		s := newStore(t, domain.Product{ID: "A", Stock: 4})
		err := s.Atomically(t.Context(), []string{"A"}, func(tx port.CheckoutTx) error {
			return tx.ConditionalDecrementStock(t.Context(), "A", 1, 5)
		})
		require.ErrorIs(t, err, domain.ErrStockChanged)
		assert.Equal(t, 4, stockOf(t, s, "A"))
	})

	t.Run("NeverBelowZero", func(t *testing.T) {
		s := newStore(t, domain.Product{ID: "A", Stock: 1})
		err := s.Atomically(t.Context(), []string{"A"}, func(tx port.CheckoutTx) error {
			return tx.ConditionalDecrementStock(t.Context(), "A", 2, 1)
		})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, 1, stockOf(t, s, "A"))
	})

	t.Run("UnlockedProduct", func(t *testing.T) {
		s := newStore(t, domain.Product{ID: "A", Stock: 1})
		err := s.Atomically(t.Context(), nil, func(tx port.CheckoutTx) error {
			return tx.ConditionalDecrementStock(t.Context(), "A", 1, 1)
		})
		require.Error(t, err)
		assert.Equal(t, 1, stockOf(t, s, "A"))
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		s := memstore.New()
		err := s.Atomically(t.Context(), []string{"X"}, func(tx port.CheckoutTx) error {
			return tx.ConditionalDecrementStock(t.Context(), "X", 1, 1)
		})
		require.ErrorIs(t, err, domain.ErrProductNotFound)
	})
}

func TestAtomicallyLastUnitRace(t *testing.T) {
	s := newStore(t, domain.Product{ID: "A", Stock: 1})

	var won atomic.Int32
	var g errgroup.Group
	for range 32 {
		g.Go(func() error {
			err := s.Atomically(t.Context(), []string{"A"}, func(tx port.CheckoutTx) error {
				return tx.ConditionalDecrementStock(t.Context(), "A", 1, 1)
			})
			switch {
			case err == nil:
				won.Add(1)
			case !errors.Is(err, domain.ErrStockChanged):
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), won.Load())
	assert.Zero(t, stockOf(t, s, "A"))
}

func TestAtomicallyDisjointProductsDoNotBlock(t *testing.T) {
	s := newStore(t,
		domain.Product{ID: "A", Stock: 1},
		domain.Product{ID: "B", Stock: 1},
	)

	inA := make(chan struct{})
	release := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		return s.Atomically(t.Context(), []string{"A"}, func(tx port.CheckoutTx) error {
			close(inA)
			<-release
			return tx.ConditionalDecrementStock(t.Context(), "A", 1, 1)
		})
	})

	<-inA
	err := s.Atomically(t.Context(), []string{"B"}, func(tx port.CheckoutTx) error {
		return tx.ConditionalDecrementStock(t.Context(), "B", 1, 1)
	})
	require.NoError(t, err)
	close(release)
	require.NoError(t, g.Wait())

	assert.Zero(t, stockOf(t, s, "A"))
	assert.Zero(t, stockOf(t, s, "B"))
}
