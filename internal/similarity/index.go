// Package similarity holds the precomputed item-item similarity index used
// to offer substitutes for sold-out products, and the binary artifact it is
// loaded from.
//
// An [Index] is immutable once built. It is safe to share one between any
// number of goroutines; a newer build replaces it wholesale through a
// [Holder].
package similarity

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/niksmo/storefront/internal/core/domain"
)

// SymmetryTolerance bounds |score(i,j) - score(j,i)| accepted at load.
const SymmetryTolerance = 1e-6

// An Index is a square matrix of similarity scores over the catalog
// products known at build time, plus the product id to row mapping.
type Index struct {
	buildVersion uint64
	ids          []string
	rows         map[string]int
	scores       []float32 // row-major, len(ids)^2
}

// New validates the matrix and builds an index over copies of ids and scores.
func New(buildVersion uint64, ids []string, scores []float32) (*Index, error) {
	n := len(ids)
	if n == 0 {
		return nil, corrupt(nil, "empty identity table")
	}
	if len(scores) != n*n {
		return nil, corrupt(nil,
			"matrix has %d cells, want %d for %d products", len(scores), n*n, n,
		)
	}

	rows := make(map[string]int, n)
	for i, id := range ids {
		if id == "" {
			return nil, corrupt(nil, "empty product id at row %d", i)
		}
		if prev, ok := rows[id]; ok {
			return nil, corrupt(nil,
				"duplicate product id %q at rows %d and %d", id, prev, i,
			)
		}
		rows[id] = i
	}

	if err := validateMatrix(n, scores); err != nil {
		return nil, err
	}

	return &Index{
		buildVersion: buildVersion,
		ids:          slices.Clone(ids),
		rows:         rows,
		scores:       slices.Clone(scores),
	}, nil
}

func validateMatrix(n int, scores []float32) error {
	for i := range n {
		for j := i; j < n; j++ {
			a := float64(scores[i*n+j])
			if math.IsNaN(a) || math.IsInf(a, 0) {
				return corrupt(nil, "non-finite score at (%d,%d)", i, j)
			}
			if i == j {
				continue
			}
			b := float64(scores[j*n+i])
			if math.IsNaN(b) || math.IsInf(b, 0) {
				return corrupt(nil, "non-finite score at (%d,%d)", j, i)
			}
			if math.Abs(a-b) > SymmetryTolerance {
				return corrupt(nil,
					"asymmetric scores at (%d,%d): %g != %g", i, j, a, b,
				)
			}
		}
	}
	return nil
}

func (x *Index) BuildVersion() uint64 {
	return x.buildVersion
}

// Len returns the number of products in the index.
func (x *Index) Len() int {
	return len(x.ids)
}

// Contains reports whether the product has a row in the index.
func (x *Index) Contains(productID string) bool {
	_, ok := x.rows[productID]
	return ok
}

// TopK returns up to k products most similar to productID, best first.
// The product itself is never returned. Equal scores are ordered by
// ascending row, so the result is reproducible.
func (x *Index) TopK(productID string, k int) ([]domain.ScoredProduct, error) {
	row, ok := x.rows[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProduct, productID)
	}
	if k <= 0 {
		return nil, nil
	}

	n := len(x.ids)
	base := row * n
	candidates := make([]int, 0, n-1)
	for j := range n {
		if j != row {
			candidates = append(candidates, j)
		}
	}

	slices.SortFunc(candidates, func(a, b int) int {
		if c := cmp.Compare(x.scores[base+b], x.scores[base+a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	k = min(k, len(candidates))
	out := make([]domain.ScoredProduct, k)
	for i, j := range candidates[:k] {
		out[i] = domain.ScoredProduct{
			ProductID: x.ids[j],
			Score:     x.scores[base+j],
		}
	}
	return out, nil
}
