package httphandler

import (
	"time"

	"github.com/niksmo/storefront/internal/core/domain"
)

type (
	Product struct {
		ProductID   string    `json:"product_id"`
		Name        string    `json:"name"`
		Category    string    `json:"category"`
		SubCategory string    `json:"sub_category"`
		Brand       string    `json:"brand"`
		Type        string    `json:"type"`
		Description string    `json:"description"`
		ImageURL    string    `json:"image_url"`
		Price       float64   `json:"price"`
		MarketPrice float64   `json:"market_price"`
		Rating      float64   `json:"rating"`
		Stock       int       `json:"stock"`
		Substitutes []Summary `json:"substitutes,omitempty"`
	}

	Summary struct {
		ProductID string  `json:"product_id"`
		Name      string  `json:"name"`
		Brand     string  `json:"brand"`
		ImageURL  string  `json:"image_url"`
		Price     float64 `json:"price"`
		Rating    float64 `json:"rating"`
		Stock     int     `json:"stock"`
	}
)

type (
	Cart struct {
		UserID string     `json:"user_id"`
		Items  []CartItem `json:"items"`
		Total  float64    `json:"total"`
	}

	CartItem struct {
		Product  Summary `json:"product"`
		Quantity int     `json:"quantity"`
		Subtotal float64 `json:"subtotal"`
	}

	AddCartItem struct {
		ProductID string `json:"product_id"`
	}

	UpdateCartItem struct {
		Action string `json:"action"`
	}
)

const (
	actionIncrease = "increase"
	actionDecrease = "decrease"
)

type (
	Shipping struct {
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		Address       string `json:"address"`
		Country       string `json:"country"`
		State         string `json:"state"`
		ZipCode       string `json:"zip_code"`
		PaymentMethod string `json:"payment_method"`
	}

	CheckoutResult struct {
		OrderID   string  `json:"order_id"`
		Total     float64 `json:"total"`
		LineCount int     `json:"line_count"`
	}

	Order struct {
		OrderID    string      `json:"order_id"`
		UserID     string      `json:"user_id"`
		TotalPrice float64     `json:"total_price"`
		Status     string      `json:"status"`
		CreatedAt  time.Time   `json:"created_at"`
		Shipping   Shipping    `json:"shipping"`
		Lines      []OrderLine `json:"lines"`
	}

	OrderLine struct {
		ProductID       string  `json:"product_id"`
		Quantity        int     `json:"quantity"`
		PriceAtPurchase float64 `json:"price_at_purchase"`
	}
)

type (
	ErrorResponse struct {
		Error      string      `json:"error"`
		ProductID  string      `json:"product_id,omitempty"`
		Available  *int        `json:"available,omitempty"`
		Requested  *int        `json:"requested,omitempty"`
		Shortfalls []Shortfall `json:"shortfalls,omitempty"`
	}

	Shortfall struct {
		ProductID string `json:"product_id"`
		Available int    `json:"available"`
		Requested int    `json:"requested"`
	}
)

func toSummary(p domain.Product) Summary {
	return Summary{
		ProductID: p.ID,
		Name:      p.Name,
		Brand:     p.Brand,
		ImageURL:  p.ImageURL,
		Price:     p.Price,
		Rating:    p.Rating,
		Stock:     p.Stock,
	}
}

func toProduct(d domain.ProductDetail) Product {
	p := d.Product
	v := Product{
		ProductID:   p.ID,
		Name:        p.Name,
		Category:    p.Category,
		SubCategory: p.SubCategory,
		Brand:       p.Brand,
		Type:        p.Type,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Price:       p.Price,
		MarketPrice: p.MarketPrice,
		Rating:      p.Rating,
		Stock:       p.Stock,
	}
	for _, s := range d.Substitutes {
		v.Substitutes = append(v.Substitutes, toSummary(s))
	}
	return v
}

func toCart(c domain.Cart) Cart {
	v := Cart{
		UserID: c.UserID,
		Items:  make([]CartItem, len(c.Items)),
		Total:  c.Total,
	}
	for i, item := range c.Items {
		v.Items[i] = CartItem{
			Product:  toSummary(item.Product),
			Quantity: item.Quantity,
			Subtotal: item.Subtotal(),
		}
	}
	return v
}

func (s Shipping) toDomain() domain.Shipping {
	return domain.Shipping{
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		Address:       s.Address,
		Country:       s.Country,
		State:         s.State,
		ZipCode:       s.ZipCode,
		PaymentMethod: s.PaymentMethod,
	}
}

func toOrder(o domain.Order) Order {
	sh := o.Shipping
	v := Order{
		OrderID:    o.ID,
		UserID:     o.UserID,
		TotalPrice: o.TotalPrice,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		Shipping: Shipping{
			FirstName:     sh.FirstName,
			LastName:      sh.LastName,
			Address:       sh.Address,
			Country:       sh.Country,
			State:         sh.State,
			ZipCode:       sh.ZipCode,
			PaymentMethod: sh.PaymentMethod,
		},
		Lines: make([]OrderLine, len(o.Lines)),
	}
	for i, l := range o.Lines {
		v.Lines[i] = OrderLine{
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase,
		}
	}
	return v
}
