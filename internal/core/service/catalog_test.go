package service_test

import (
	"errors"
	"testing"

	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/service"
	"github.com/niksmo/storefront/internal/similarity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ids(ps []domain.Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestSubstitutes(t *testing.T) {
	catalog := []domain.Product{
		{ID: "p0", Stock: 3},
		{ID: "p1", Stock: 0},
		{ID: "p2", Stock: 7},
		{ID: "p3", Stock: 0},
		{ID: "p4", Stock: 1},
		{ID: "p5", Stock: 2},
	}

	t.Run("OrderedBySimilarity", func(t *testing.T) {
		mem := seed(t, catalog...)
		n := 6
		scores := make([]float32, n*n)
		for i := range n {
			scores[i*n+i] = 1
		}
		row3 := []float32{0.1, 0.9, 0.9, 1.0, 0.4, 0.2}
		for j, v := range row3 {
			scores[3*n+j] = v
			scores[j*n+3] = v
		}
		idx, err := similarity.New(1, ids(catalog), scores)
		require.NoError(t, err)
		obs := new(recordingObserver)
		s := newService(t, mem, mem,
			service.WithSimilarityIndex(idx),
			service.WithObserver(obs),
		)

		d, err := s.ProductDetail(t.Context(), "p3")
		require.NoError(t, err)
		assert.Equal(t, "p3", d.Product.ID)
		// p1 is sold out too and is still offered.
		assert.Equal(t, []string{"p1", "p2", "p4", "p5", "p0"}, ids(d.Substitutes))
		assert.Equal(t, []int{5}, obs.substSeen)
	})

	t.Run("InStockHasNone", func(t *testing.T) {
		mem := seed(t, catalog...)
		index := new(MockSimilarityIndex)
		s := newService(t, mem, mem, service.WithSimilarityIndex(index))

		d, err := s.ProductDetail(t.Context(), "p2")
		require.NoError(t, err)
		assert.Empty(t, d.Substitutes)
		index.AssertNotCalled(t, "TopK", mock.Anything, mock.Anything)
	})

	t.Run("UnknownToIndex", func(t *testing.T) {
		mem := seed(t, append(catalog, domain.Product{ID: "new", Stock: 0})...)
		index := new(MockSimilarityIndex)
		index.On("TopK", "new", service.SubstituteCount).
			Return(nil, domain.ErrUnknownProduct)
		s := newService(t, mem, mem, service.WithSimilarityIndex(index))

		subs, err := s.Substitutes(t.Context(), domain.Product{ID: "new"})
		require.NoError(t, err)
		assert.Empty(t, subs)
		index.AssertExpectations(t)
	})

	t.Run("IndexUnavailable", func(t *testing.T) {
		mem := seed(t, catalog...)
		s := newService(t, mem, mem,
			service.WithSimilarityIndex(similarity.NewHolder()),
		)

		subs, err := s.Substitutes(t.Context(), domain.Product{ID: "p3"})
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("NoIndexConfigured", func(t *testing.T) {
		mem := seed(t, catalog...)
		s := newService(t, mem, mem)

		subs, err := s.Substitutes(t.Context(), domain.Product{ID: "p3"})
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("SkipsProductsLeftCatalog", func(t *testing.T) {
		mem := seed(t, catalog...)
		index := new(MockSimilarityIndex)
		index.On("TopK", "p3", service.SubstituteCount).Return(
			[]domain.ScoredProduct{
				{ProductID: "gone", Score: 0.95},
				{ProductID: "p2", Score: 0.9},
			}, nil,
		)
		s := newService(t, mem, mem, service.WithSimilarityIndex(index))

		subs, err := s.Substitutes(t.Context(), domain.Product{ID: "p3"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, ids(subs))
	})

	t.Run("IndexFailure", func(t *testing.T) {
		mem := seed(t, catalog...)
		index := new(MockSimilarityIndex)
		boom := errors.New("boom")
		index.On("TopK", "p3", service.SubstituteCount).Return(nil, boom)
		s := newService(t, mem, mem, service.WithSimilarityIndex(index))

		_, err := s.Substitutes(t.Context(), domain.Product{ID: "p3"})
		require.ErrorIs(t, err, boom)
	})
}

func TestProductDetailNotFound(t *testing.T) {
	mem := seed(t)
	s := newService(t, mem, mem)

	_, err := s.ProductDetail(t.Context(), "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}
