package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/niksmo/storefront/internal/core/domain"
)

// ProductDetail returns the product and, when it is sold out, its
// substitutes.
func (s *Service) ProductDetail(
	ctx context.Context, productID string,
) (domain.ProductDetail, error) {
	const op = "Service.ProductDetail"

	if err := ctx.Err(); err != nil {
		return domain.ProductDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.checkout.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductDetail{}, fmt.Errorf("%s: %w", op, err)
	}

	subs, err := s.Substitutes(ctx, p)
	if err != nil {
		return domain.ProductDetail{}, fmt.Errorf("%s: %w", op, err)
	}
	return domain.ProductDetail{Product: p, Substitutes: subs}, nil
}

// Substitutes returns up to [SubstituteCount] catalog products most
// similar to a sold-out product, best first. A product in stock, a
// product unknown to the index or a missing index yield none. Hits that
// left the catalog are skipped. The stock of a substitute is not checked.
func (s *Service) Substitutes(
	ctx context.Context, p domain.Product,
) ([]domain.Product, error) {
	const op = "Service.Substitutes"
	log := slog.With("op", op, "productID", p.ID)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if p.Stock != 0 || s.index == nil {
		return nil, nil
	}

	hits, err := s.index.TopK(p.ID, SubstituteCount)
	switch {
	case errors.Is(err, domain.ErrUnknownProduct),
		errors.Is(err, domain.ErrIndexUnavailable):
		log.Debug("no substitutes", "reason", err)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	subs := make([]domain.Product, 0, len(hits))
	for _, hit := range hits {
		sub, err := s.checkout.GetProduct(ctx, hit.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			log.Debug("substitute left the catalog", "substituteID", hit.ProductID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		subs = append(subs, sub)
	}

	s.observer.OnSubstitutes(len(subs))
	return subs, nil
}

// SaveProducts stores catalog records received from the catalog feed.
func (s *Service) SaveProducts(ctx context.Context, ps []domain.Product) error {
	const op = "Service.SaveProducts"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.productsStorage.StoreProducts(ctx, ps)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
