// Package orders drives an order through its fulfillment lifecycle. Stock is
// reserved on confirmation, released on cancellation and committed on
// delivery; every transition runs inside one unit of work.
package orders

import (
	"time"

	"github.com/stocklane/stocklane/internal/sales"
)

// Status represents the order lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPacked    Status = "PACKED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Valid checks if the status is a known one.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPacked, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// nexts is the strict transition table. Cancelled is reachable from every
// non-terminal state; skipping forward states is not allowed.
var nexts = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPacked, StatusCancelled},
	StatusPacked:    {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range nexts[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order references the quantities it intends to move; the product rows stay
// the single source of truth for stock.
type Order struct {
	ID            int64               `json:"id"`
	Code          string              `json:"code"`
	FranchiseID   int64               `json:"franchiseId"`
	CustomerName  string              `json:"customerName"`
	PaymentMethod sales.PaymentMethod `json:"paymentMethod"`
	Status        Status              `json:"orderStatus"`
	Items         []Item              `json:"items,omitempty"`
	TotalAmount   float64             `json:"totalAmount"`
	Note          string              `json:"note,omitempty"`
	CreatedBy     int64               `json:"createdBy"`
	ConfirmedAt   *time.Time          `json:"confirmedAt,omitempty"`
	DeliveredAt   *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt   *time.Time          `json:"cancelledAt,omitempty"`
	Deleted       bool                `json:"-"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Item is one order line with its unit price snapshot taken at creation.
type Item struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"orderId"`
	ProductID int64   `json:"productId"`
	SKU       string  `json:"sku"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Subtotal  float64 `json:"subtotal"`
}

// RecomputeTotal derives the order total from its items; totals are never
// edited independently.
func (o *Order) RecomputeTotal() {
	var total float64
	for i := range o.Items {
		o.Items[i].Subtotal = o.Items[i].UnitPrice * float64(o.Items[i].Quantity)
		total += o.Items[i].Subtotal
	}
	o.TotalAmount = total
}

// StatusStamps carries the timestamps a transition sets alongside the status
// write.
type StatusStamps struct {
	ConfirmedAt *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}
