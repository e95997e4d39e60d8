package orders

import (
	"time"

	"github.com/stocklane/stocklane/internal/sales"
)

// CreateOrderRequest creates a pending order.
type CreateOrderRequest struct {
	FranchiseID   int64                `json:"franchiseId" validate:"required,gt=0"`
	CustomerName  string               `json:"customerName" validate:"required,max=200"`
	PaymentMethod sales.PaymentMethod  `json:"paymentMethod" validate:"required,oneof=cash card transfer cod"`
	Note          string               `json:"note,omitempty" validate:"max=500"`
	Items         []CreateOrderItemReq `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderItemReq is one requested line. The unit price may be omitted to
// snapshot the product's current selling price.
type CreateOrderItemReq struct {
	ProductID int64    `json:"productId" validate:"required,gt=0"`
	Quantity  int64    `json:"quantity" validate:"required,gt=0"`
	UnitPrice *float64 `json:"unitPrice,omitempty" validate:"omitempty,gte=0"`
}

// UpdateItemsRequest replaces the items of a pending order.
type UpdateItemsRequest struct {
	Items []CreateOrderItemReq `json:"items" validate:"required,min=1,dive"`
}

// ChangeStatusRequest is the PATCH /orders/{id}/status payload.
type ChangeStatusRequest struct {
	OrderStatus Status `json:"orderStatus" validate:"required"`
}

// ListOrdersRequest filters the order listing.
type ListOrdersRequest struct {
	FranchiseID int64
	Status      *Status
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Offset      int
}
