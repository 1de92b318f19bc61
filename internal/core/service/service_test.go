package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/niksmo/storefront/internal/adapter/memstore"
	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
	"github.com/niksmo/storefront/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type MockOrderEventsProducer struct {
	mock.Mock
}

func (p *MockOrderEventsProducer) ProduceOrderPlaced(
	ctx context.Context, o domain.Order,
) error {
	args := p.Called(ctx, o)
	return args.Error(0)
}

type MockSimilarityIndex struct {
	mock.Mock
}

func (x *MockSimilarityIndex) TopK(
	productID string, k int,
) ([]domain.ScoredProduct, error) {
	args := x.Called(productID, k)
	hits, _ := args.Get(0).([]domain.ScoredProduct)
	return hits, args.Error(1)
}

type recordingObserver struct {
	mu        sync.Mutex
	outcomes  []string
	raceLost  int
	substSeen []int
}

func (o *recordingObserver) OnCheckout(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) OnStockRaceLost() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.raceLost++
}

func (o *recordingObserver) OnSubstitutes(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.substSeen = append(o.substSeen, n)
}

// racingStore lets a rival checkout take stock right after validation,
// for the first rivals commits.
type racingStore struct {
	*memstore.Store
	mu     sync.Mutex
	rivals int
	rival  func(ctx context.Context) error
}

func (s *racingStore) Atomically(
	ctx context.Context, productIDs []string, fn func(port.CheckoutTx) error,
) error {
	s.mu.Lock()
	run := s.rivals > 0
	if run {
		s.rivals--
	}
	s.mu.Unlock()

	if run {
		if err := s.rival(ctx); err != nil {
			return err
		}
	}
	return s.Store.Atomically(ctx, productIDs, fn)
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newService(
	t *testing.T, st port.CheckoutStore, mem *memstore.Store, opts ...service.Option,
) *service.Service {
	t.Helper()
	base := []service.Option{
		service.WithCheckoutStore(st),
		service.WithCartStore(mem),
		service.WithOrderStore(mem),
		service.WithProductsStorage(mem),
		service.WithClock(func() time.Time { return fixedNow }),
	}
	s, err := service.New(append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, ps ...domain.Product) *memstore.Store {
	t.Helper()
	mem := memstore.New()
	require.NoError(t, mem.StoreProducts(t.Context(), ps))
	return mem
}

func addLine(t *testing.T, mem *memstore.Store, userID, productID string, qty int) {
	t.Helper()
	_, err := mem.AdjustCartLine(t.Context(), userID, productID, qty)
	require.NoError(t, err)
}

func stockOf(t *testing.T, mem *memstore.Store, productID string) int {
	t.Helper()
	p, err := mem.GetProduct(t.Context(), productID)
	require.NoError(t, err)
	return p.Stock
}

func cartLines(t *testing.T, mem *memstore.Store, userID string) []domain.CartLine {
	t.Helper()
	lines, err := mem.CartLines(t.Context(), userID)
	require.NoError(t, err)
	return lines
}

func cartLen(t *testing.T, mem *memstore.Store, userID string) int {
	t.Helper()
	return len(cartLines(t, mem, userID))
}

func TestNew(t *testing.T) {
	t.Run("MissingStores", func(t *testing.T) {
		_, err := service.New()
		require.ErrorIs(t, err, service.ErrMissingDependency)
	})

	t.Run("InvalidRetry", func(t *testing.T) {
		mem := memstore.New()
		_, err := service.New(
			service.WithCheckoutStore(mem),
			service.WithCheckoutRetry(0, time.Millisecond),
		)
		require.Error(t, err)
	})
}

func TestCheckoutCart(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 10, Stock: 5})
		addLine(t, mem, "u1", "A", 2)
		obs := new(recordingObserver)
		s := newService(t, mem, mem, service.WithObserver(obs))

		shipping := domain.Shipping{FirstName: "Ada", Country: "UK", PaymentMethod: "card"}
		o, err := s.CheckoutCart(t.Context(), "u1", shipping)
		require.NoError(t, err)

		assert.Equal(t, 3, stockOf(t, mem, "A"))
		assert.InDelta(t, 20.0, o.TotalPrice, 1e-6)
		assert.True(t, o.TotalConsistent())
		assert.Equal(t, domain.OrderStatusCompleted, o.Status)
		assert.Equal(t, fixedNow, o.CreatedAt)
		assert.Equal(t, shipping, o.Shipping)
		assert.Zero(t, cartLen(t, mem, "u1"))
		assert.Equal(t, []string{service.OutcomeCompleted}, obs.outcomes)

		stored, err := s.Order(t.Context(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, o, stored)
	})

	t.Run("InsufficientStockChangesNothing", func(t *testing.T) {
		mem := seed(t,
			domain.Product{ID: "A", Price: 10, Stock: 5},
			domain.Product{ID: "B", Price: 3, Stock: 0},
		)
		addLine(t, mem, "u1", "A", 2)
		addLine(t, mem, "u1", "B", 1)
		before := cartLines(t, mem, "u1")
		s := newService(t, mem, mem)

		_, err := s.CheckoutCart(t.Context(), "u1", domain.Shipping{})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)

		var stockErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, domain.InsufficientStockError{
			ProductID: "B", Available: 0, Requested: 1,
		}, *stockErr)

		assert.Equal(t, 5, stockOf(t, mem, "A"))
		assert.Equal(t, 0, stockOf(t, mem, "B"))
		assert.Equal(t, before, cartLines(t, mem, "u1"))
		assert.Empty(t, mem.Orders("u1"))
	})

	t.Run("KeepsUnitsAddedDuringCheckout", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 10, Stock: 9})
		addLine(t, mem, "u1", "A", 2)
		st := &racingStore{Store: mem, rivals: 1, rival: func(ctx context.Context) error {
			_, err := mem.AdjustCartLine(ctx, "u1", "A", 1)
			return err
		}}
		s := newService(t, st, mem)

		o, err := s.CheckoutCart(t.Context(), "u1", domain.Shipping{})
		require.NoError(t, err)
		require.Len(t, o.Lines, 1)
		assert.Equal(t, 2, o.Lines[0].Quantity)
		assert.Equal(t, 7, stockOf(t, mem, "A"))
		assert.Equal(t, []domain.CartLine{
			{UserID: "u1", ProductID: "A", Quantity: 1},
		}, cartLines(t, mem, "u1"))
	})

	t.Run("EmptyCart", func(t *testing.T) {
		mem := memstore.New()
		obs := new(recordingObserver)
		s := newService(t, mem, mem, service.WithObserver(obs))

		_, err := s.CheckoutCart(t.Context(), "u1", domain.Shipping{})
		require.ErrorIs(t, err, domain.ErrEmptyCart)
		assert.Equal(t, []string{service.OutcomeEmptyCart}, obs.outcomes)
	})
}

func TestCheckout(t *testing.T) {
	t.Run("ReportsEveryShortfall", func(t *testing.T) {
		mem := seed(t,
			domain.Product{ID: "A", Price: 1, Stock: 1},
			domain.Product{ID: "B", Price: 1, Stock: 0},
			domain.Product{ID: "C", Price: 1, Stock: 9},
		)
		s := newService(t, mem, mem)

		_, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines: []domain.CartLine{
				{ProductID: "A", Quantity: 2},
				{ProductID: "B", Quantity: 1},
				{ProductID: "C", Quantity: 1},
			},
		})
		require.Error(t, err)

		joined, ok := errors.Unwrap(err).(interface{ Unwrap() []error })
		require.True(t, ok)
		assert.Len(t, joined.Unwrap(), 2)
		assert.Equal(t, 9, stockOf(t, mem, "C"))
	})

	t.Run("MergesDuplicateLines", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 2.5, Stock: 5})
		s := newService(t, mem, mem)

		o, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines: []domain.CartLine{
				{ProductID: "A", Quantity: 1},
				{ProductID: "A", Quantity: 2},
			},
		})
		require.NoError(t, err)
		require.Len(t, o.Lines, 1)
		assert.Equal(t, 3, o.Lines[0].Quantity)
		assert.InDelta(t, 7.5, o.TotalPrice, 1e-6)
		assert.Equal(t, 2, stockOf(t, mem, "A"))
	})

	t.Run("KeepsCartUnitsNotBought", func(t *testing.T) {
		mem := seed(t,
			domain.Product{ID: "A", Price: 1, Stock: 10},
			domain.Product{ID: "B", Price: 1, Stock: 10},
		)
		addLine(t, mem, "u1", "A", 5)
		addLine(t, mem, "u1", "B", 1)
		s := newService(t, mem, mem)

		_, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines:  []domain.CartLine{{ProductID: "A", Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, 9, stockOf(t, mem, "A"))
		assert.Equal(t, []domain.CartLine{
			{UserID: "u1", ProductID: "A", Quantity: 4},
			{UserID: "u1", ProductID: "B", Quantity: 1},
		}, cartLines(t, mem, "u1"))
	})

	t.Run("InvalidQuantity", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Stock: 5})
		s := newService(t, mem, mem)

		_, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines:  []domain.CartLine{{ProductID: "A", Quantity: 0}},
		})
		require.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.Equal(t, 5, stockOf(t, mem, "A"))
	})

	t.Run("UnknownProduct", func(t *testing.T) {
		mem := memstore.New()
		s := newService(t, mem, mem)

		_, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines:  []domain.CartLine{{ProductID: "X", Quantity: 1}},
		})
		require.ErrorIs(t, err, domain.ErrProductNotFound)
	})

	t.Run("PriceSnapshotSurvivesCatalogChange", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 10, Stock: 5})
		s := newService(t, mem, mem)

		o, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines:  []domain.CartLine{{ProductID: "A", Quantity: 1}},
		})
		require.NoError(t, err)

		err = s.SaveProducts(t.Context(), []domain.Product{{ID: "A", Price: 99, Stock: 5}})
		require.NoError(t, err)

		stored, err := s.Order(t.Context(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, 10.0, stored.Lines[0].PriceAtPurchase)
		assert.InDelta(t, 10.0, stored.TotalPrice, 1e-6)
		assert.Equal(t, 4, stockOf(t, mem, "A"))
	})
}

func TestCheckoutRaceLost(t *testing.T) {
	rivalTakes := func(mem *memstore.Store, n int) func(context.Context) error {
		return func(ctx context.Context) error {
			p, err := mem.GetProduct(ctx, "A")
			if err != nil {
				return err
			}
			return mem.Atomically(ctx, []string{"A"}, func(tx port.CheckoutTx) error {
				return tx.ConditionalDecrementStock(ctx, "A", n, p.Stock)
			})
		}
	}

	t.Run("RetriedAndCompleted", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 4, Stock: 5})
		st := &racingStore{Store: mem, rivals: 1, rival: rivalTakes(mem, 1)}
		obs := new(recordingObserver)
		s := newService(t, st, mem,
			service.WithObserver(obs),
			service.WithCheckoutRetry(3, 0),
		)

		o, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines:  []domain.CartLine{{ProductID: "A", Quantity: 2}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, stockOf(t, mem, "A"))
		assert.Len(t, mem.Orders("u1"), 1)
		assert.Equal(t, o.ID, mem.Orders("u1")[0].ID)
		assert.Equal(t, 1, obs.raceLost)
	})

	t.Run("ExhaustedAttempts", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 4, Stock: 10})
		st := &racingStore{Store: mem, rivals: 2, rival: rivalTakes(mem, 1)}
		obs := new(recordingObserver)
		s := newService(t, st, mem,
			service.WithObserver(obs),
			service.WithCheckoutRetry(2, 0),
		)

		_, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines:  []domain.CartLine{{ProductID: "A", Quantity: 1}},
		})
		require.ErrorIs(t, err, domain.ErrStockRaceLost)
		assert.Equal(t, 8, stockOf(t, mem, "A"))
		assert.Empty(t, mem.Orders("u1"))
		assert.Equal(t, 2, obs.raceLost)
		assert.Equal(t, []string{service.OutcomeRaceLost}, obs.outcomes)
	})

	t.Run("RevalidationFails", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 4, Stock: 2})
		st := &racingStore{Store: mem, rivals: 1, rival: rivalTakes(mem, 1)}
		s := newService(t, st, mem, service.WithCheckoutRetry(3, 0))

		_, err := s.Checkout(t.Context(), domain.CheckoutRequest{
			UserID: "u1",
			Lines:  []domain.CartLine{{ProductID: "A", Quantity: 2}},
		})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, 1, stockOf(t, mem, "A"))
	})
}

func TestCheckoutLastUnitConcurrently(t *testing.T) {
	mem := seed(t, domain.Product{ID: "C", Price: 1, Stock: 1})
	s := newService(t, mem, mem)

	const buyers = 16
	errs := make([]error, buyers)
	var g errgroup.Group
	for i := range buyers {
		g.Go(func() error {
			_, errs[i] = s.Checkout(t.Context(), domain.CheckoutRequest{
				UserID: "u",
				Lines:  []domain.CartLine{{ProductID: "C", Quantity: 1}},
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var won int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.True(t,
			errors.Is(err, domain.ErrInsufficientStock) ||
				errors.Is(err, domain.ErrStockRaceLost),
			"unexpected error: %v", err,
		)
	}
	assert.Equal(t, 1, won)
	assert.Zero(t, stockOf(t, mem, "C"))
	assert.Len(t, mem.Orders("u"), 1)
}

func TestPlaceOrder(t *testing.T) {
	t.Run("PublishesEvent", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 10, Stock: 5})
		addLine(t, mem, "u1", "A", 2)
		events := new(MockOrderEventsProducer)
		events.On("ProduceOrderPlaced", mock.Anything, mock.MatchedBy(
			func(o domain.Order) bool { return o.UserID == "u1" },
		)).Return(nil)
		s := newService(t, mem, mem, service.WithOrderEvents(events))

		sum, err := s.PlaceOrder(t.Context(), "u1", domain.Shipping{})
		require.NoError(t, err)
		assert.NotEmpty(t, sum.ID)
		assert.InDelta(t, 20.0, sum.Total, 1e-6)
		assert.Equal(t, 1, sum.LineCount)
		events.AssertExpectations(t)
	})

	t.Run("PublishFailureKeepsOrder", func(t *testing.T) {
		mem := seed(t, domain.Product{ID: "A", Price: 10, Stock: 5})
		addLine(t, mem, "u1", "A", 1)
		events := new(MockOrderEventsProducer)
		events.On("ProduceOrderPlaced", mock.Anything, mock.Anything).
			Return(errors.New("broker down"))
		s := newService(t, mem, mem, service.WithOrderEvents(events))

		sum, err := s.PlaceOrder(t.Context(), "u1", domain.Shipping{})
		require.NoError(t, err)
		assert.Equal(t, 4, stockOf(t, mem, "A"))

		_, err = s.Order(t.Context(), sum.ID)
		require.NoError(t, err)
		events.AssertExpectations(t)
	})

	t.Run("FailedCheckoutPublishesNothing", func(t *testing.T) {
		mem := memstore.New()
		events := new(MockOrderEventsProducer)
		s := newService(t, mem, mem, service.WithOrderEvents(events))

		_, err := s.PlaceOrder(t.Context(), "u1", domain.Shipping{})
		require.ErrorIs(t, err, domain.ErrEmptyCart)
		events.AssertNotCalled(t, "ProduceOrderPlaced", mock.Anything, mock.Anything)
	})
}

func TestOrderNotFound(t *testing.T) {
	mem := memstore.New()
	s := newService(t, mem, mem)

	_, err := s.Order(t.Context(), "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
