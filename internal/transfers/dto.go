package transfers

import "time"

// CreateTransferRequest proposes moving stock out of the caller's franchise.
type CreateTransferRequest struct {
	ProductID     int64   `json:"productId" validate:"required,gt=0"`
	ToFranchiseID int64   `json:"toFranchiseId" validate:"required,gt=0"`
	Quantity      int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice     float64 `json:"unitPrice" validate:"gte=0"`
	Note          string  `json:"note" validate:"max=500"`
}

// ListTransfersRequest filters the transfer listing. Both sides of a movement
// see it: the franchise filter matches source or destination.
type ListTransfersRequest struct {
	FranchiseID int64
	Status      *Status
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Offset      int
}

// BulkMoveRow is one element of a bulk import/export request. Import rows
// name a source product in another franchise and credit the caller's;
// export rows name a product in the caller's franchise and a destination.
type BulkMoveRow struct {
	ProductID     int64   `json:"productId" validate:"required,gt=0"`
	ToFranchiseID int64   `json:"toFranchiseId" validate:"omitempty,gt=0"`
	Quantity      int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice     float64 `json:"unitPrice" validate:"gte=0"`
	Note          string  `json:"note" validate:"max=500"`
}

// BulkOutcome is the per-row result of a bulk movement. Rows succeed or fail
// independently; a failed row never blocks the others.
type BulkOutcome struct {
	Index      int    `json:"index"`
	TransferID int64  `json:"transferId,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}
