package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/niksmo/storefront/internal/core/port"
	"github.com/niksmo/storefront/pkg/retry"
)

var (
	_ port.ProductViewer = (*Service)(nil)
	_ port.CartManager   = (*Service)(nil)
	_ port.OrderPlacer   = (*Service)(nil)
	_ port.OrderGetter   = (*Service)(nil)
	_ port.ProductsSaver = (*Service)(nil)
)

const (
	// SubstituteCount is the number of similarity hits asked for a
	// sold-out product.
	SubstituteCount = 5

	DefaultMaxAttempts = 3
)

var ErrMissingDependency = errors.New("missing dependency")

type Option func(*Service) error

// WithCheckoutStore sets the store read during validation and written
// during the commit. It is required.
func WithCheckoutStore(st port.CheckoutStore) Option {
	return func(s *Service) error {
		if st == nil {
			return errors.New("checkout store is nil")
		}
		s.checkout = st
		return nil
	}
}

func WithCartStore(st port.CartStore) Option {
	return func(s *Service) error {
		if st == nil {
			return errors.New("cart store is nil")
		}
		s.carts = st
		return nil
	}
}

func WithOrderStore(st port.OrderStore) Option {
	return func(s *Service) error {
		if st == nil {
			return errors.New("order store is nil")
		}
		s.orders = st
		return nil
	}
}

func WithProductsStorage(st port.ProductsStorage) Option {
	return func(s *Service) error {
		if st == nil {
			return errors.New("products storage is nil")
		}
		s.productsStorage = st
		return nil
	}
}

// WithSimilarityIndex enables substitutes. Without it sold-out products
// have none.
func WithSimilarityIndex(idx port.SimilarityIndex) Option {
	return func(s *Service) error {
		s.index = idx
		return nil
	}
}

// WithOrderEvents publishes an event after every placed order.
func WithOrderEvents(p port.OrderEventsProducer) Option {
	return func(s *Service) error {
		s.events = p
		return nil
	}
}

func WithObserver(o port.CheckoutObserver) Option {
	return func(s *Service) error {
		if o == nil {
			return errors.New("observer is nil")
		}
		s.observer = o
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		s.clock = now
		return nil
	}
}

// WithCheckoutRetry bounds the attempts made when a concurrent checkout
// changes the stock between validation and commit. A zero delay retries
// immediately.
func WithCheckoutRetry(maxAttempts int, delay time.Duration) Option {
	return func(s *Service) error {
		if maxAttempts <= 0 {
			return fmt.Errorf("max attempts must be positive, got %d", maxAttempts)
		}
		if delay < 0 {
			return fmt.Errorf("retry delay must not be negative, got %s", delay)
		}
		s.maxAttempts = maxAttempts
		s.retryDelay = delay
		return nil
	}
}

type Service struct {
	checkout        port.CheckoutStore
	carts           port.CartStore
	orders          port.OrderStore
	productsStorage port.ProductsStorage
	index           port.SimilarityIndex
	events          port.OrderEventsProducer
	observer        port.CheckoutObserver
	clock           func() time.Time
	maxAttempts     int
	retryDelay      time.Duration
}

func New(opts ...Option) (*Service, error) {
	const op = "service.New"

	s := &Service{
		observer:    nopObserver{},
		clock:       time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	switch {
	case s.checkout == nil:
		return nil, fmt.Errorf("%s: %w: checkout store", op, ErrMissingDependency)
	case s.carts == nil:
		return nil, fmt.Errorf("%s: %w: cart store", op, ErrMissingDependency)
	case s.orders == nil:
		return nil, fmt.Errorf("%s: %w: order store", op, ErrMissingDependency)
	case s.productsStorage == nil:
		return nil, fmt.Errorf("%s: %w: products storage", op, ErrMissingDependency)
	}
	return s, nil
}

func (s *Service) retryConfig() retry.RetryConfig {
	backoff := retry.NoBackoff()
	if s.retryDelay > 0 {
		backoff = retry.LinearBackoff(s.retryDelay)
	}
	return retry.RetryConfig{
		MaxAttempts: s.maxAttempts,
		Backoff:     backoff,
		ShouldRetry: isRaceLost,
	}
}

type nopObserver struct{}

func (nopObserver) OnCheckout(string, time.Duration) {}
func (nopObserver) OnStockRaceLost()                 {}
func (nopObserver) OnSubstitutes(int)                {}
