package sales

import "time"

// CreateSaleRequest is the POST /sales payload for a direct point-of-sale
// transaction.
type CreateSaleRequest struct {
	FranchiseID   int64               `json:"franchiseId" validate:"required,gt=0"`
	PaymentMethod PaymentMethod       `json:"paymentMethod" validate:"required,oneof=cash card transfer"`
	Items         []CreateSaleItemReq `json:"items" validate:"required,min=1,dive"`
}

// CreateSaleItemReq is one requested line. The selling price may be omitted
// to use the product's current price.
type CreateSaleItemReq struct {
	ProductID    int64    `json:"productId" validate:"required,gt=0"`
	Quantity     int64    `json:"quantity" validate:"required,gt=0"`
	SellingPrice *float64 `json:"sellingPrice,omitempty" validate:"omitempty,gte=0"`
}

// ListSalesRequest filters the sales listing.
type ListSalesRequest struct {
	FranchiseID int64
	Type        *SaleType
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Offset      int
}
