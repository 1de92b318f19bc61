package domain

import (
	"math"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

type Shipping struct {
	FirstName     string
	LastName      string
	Address       string
	Country       string
	State         string
	ZipCode       string
	PaymentMethod string
}

// An OrderLine keeps the price the product was sold at.
// PriceAtPurchase is never refreshed from the catalog.
type OrderLine struct {
	OrderID         string
	ProductID       string
	Quantity        int
	PriceAtPurchase float64
}

func (l OrderLine) Subtotal() float64 {
	return float64(l.Quantity) * l.PriceAtPurchase
}

type Order struct {
	ID         string
	UserID     string
	TotalPrice float64
	Status     OrderStatus
	CreatedAt  time.Time
	Shipping   Shipping
	Lines      []OrderLine
}

// LinesTotal sums quantity times purchase price over the order lines.
func (o Order) LinesTotal() float64 {
	var total float64
	for _, l := range o.Lines {
		total += l.Subtotal()
	}
	return total
}

// TotalConsistent reports whether TotalPrice matches the lines within 1e-6.
func (o Order) TotalConsistent() bool {
	return math.Abs(o.TotalPrice-o.LinesTotal()) <= 1e-6
}

func (o Order) Summary() OrderSummary {
	return OrderSummary{
		ID:        o.ID,
		Total:     o.TotalPrice,
		LineCount: len(o.Lines),
	}
}

type OrderSummary struct {
	ID        string
	Total     float64
	LineCount int
}

type CheckoutRequest struct {
	UserID   string
	Lines    []CartLine
	Shipping Shipping
}
