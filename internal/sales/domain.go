// Package sales owns the immutable ledger of completed monetary transactions.
// A Sale is created either directly at the point of sale or automatically
// when an order reaches delivered; its line items snapshot prices and profit
// at creation time and are never recomputed.
package sales

import "time"

// SaleType distinguishes order-driven sales from point-of-sale ones.
type SaleType string

const (
	SaleTypeOnline SaleType = "online"
	SaleTypePOS    SaleType = "pos"
)

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	// PaymentCOD is accepted on orders only; it maps to cash when the
	// delivery emits the sale.
	PaymentCOD PaymentMethod = "cod"
)

// Sale is one completed monetary transaction.
type Sale struct {
	ID            int64         `json:"id"`
	Code          string        `json:"code"`
	FranchiseID   int64         `json:"franchiseId"`
	OrderID       *int64        `json:"orderId,omitempty"`
	Type          SaleType      `json:"saleType"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	TotalAmount   float64       `json:"totalAmount"`
	TotalProfit   float64       `json:"totalProfit"`
	Items         []SaleItem    `json:"items,omitempty"`
	CreatedBy     int64         `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// SaleItem is one line with the price snapshot captured when the sale was
// recorded (historical accuracy invariant).
type SaleItem struct {
	ID           int64   `json:"id"`
	SaleID       int64   `json:"saleId"`
	ProductID    int64   `json:"productId"`
	SKU          string  `json:"sku"`
	Quantity     int64   `json:"quantity"`
	BuyingPrice  float64 `json:"buyingPrice"`
	SellingPrice float64 `json:"sellingPrice"`
	Subtotal     float64 `json:"subtotal"`
	Profit       float64 `json:"profit"`
}
