// Package transfers moves stock between franchises through a small approval
// workflow. Stock only physically moves when a transfer completes; until then
// the quantity is an intent, not a hold.
package transfers

import "time"

// Status is a transfer workflow state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// nexts is the strict transition table. Rejection is only possible before
// approval; cancellation works until stock has actually moved.
var nexts = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCompleted, StatusCancelled},
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

// Transfer is one inter-franchise stock movement. Quantity and unit price are
// fixed at creation; totalValue is derived and never edited independently.
type Transfer struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	ProductID       int64      `json:"productId"`
	SKU             string     `json:"sku"`
	FromFranchiseID int64      `json:"fromFranchiseId"`
	ToFranchiseID   int64      `json:"toFranchiseId"`
	Quantity        int64      `json:"quantity"`
	UnitPrice       float64    `json:"unitPrice"`
	TotalValue      float64    `json:"totalValue"`
	Status          Status     `json:"status"`
	Note            string     `json:"note,omitempty"`
	CreatedBy       int64      `json:"createdBy"`
	ApprovedBy      *int64     `json:"approvedBy,omitempty"`
	ActualDelivery  *time.Time `json:"actualDelivery,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
