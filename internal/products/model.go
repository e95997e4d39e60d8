// Package products manages the product catalogue per franchise. Stock
// counters appear here as a read-only projection; every mutation of them goes
// through the ledger.
package products

import "time"

// Product is a catalogue entry owned by one franchise. Identity is the
// (franchise, SKU) pair; the same SKU may exist in several franchises with
// independent stock.
type Product struct {
	ID               int64      `json:"id"`
	FranchiseID      int64      `json:"franchiseId"`
	SKU              string     `json:"sku"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	Category         string     `json:"category,omitempty"`
	BuyingPrice      float64    `json:"buyingPrice"`
	SellingPrice     float64    `json:"sellingPrice"`
	StockQuantity    int64      `json:"stockQuantity"`
	ReservedQuantity int64      `json:"reservedQuantity"`
	TotalSold        int64      `json:"totalSold"`
	TotalRevenue     float64    `json:"totalRevenue"`
	TotalProfit      float64    `json:"totalProfit"`
	LastSold         *time.Time `json:"lastSold,omitempty"`
	IsActive         bool       `json:"isActive"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Available is the sellable quantity.
func (p Product) Available() int64 { return p.StockQuantity - p.ReservedQuantity }
