package domain

type Product struct {
	ID          string
	Name        string
	Category    string
	SubCategory string
	Brand       string
	Type        string
	Description string
	ImageURL    string
	Price       float64
	MarketPrice float64
	Rating      float64
	Stock       int
}

// InStock reports whether at least one unit can be sold.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// A ScoredProduct is a similarity index hit.
type ScoredProduct struct {
	ProductID string
	Score     float32
}

// A ProductDetail is the product page: the product itself and,
// when it is sold out, the substitutes offered in its place.
type ProductDetail struct {
	Product     Product
	Substitutes []Product
}
