// Package ledger owns the three stock counters of a product and the atomic
// operations that move quantity between them. Orders, transfers and direct
// sales never write the counters directly.
package ledger

import (
	"time"
)

// Levels is the post-mutation counter snapshot every operation returns for
// caller verification.
type Levels struct {
	ProductID        int64 `json:"productId"`
	StockQuantity    int64 `json:"stockQuantity"`
	ReservedQuantity int64 `json:"reservedQuantity"`
}

// Available is the quantity that can still be sold or reserved.
func (l Levels) Available() int64 { return l.StockQuantity - l.ReservedQuantity }

// ProductStock is the ledger's view of a product row, locked for update while
// a unit of work mutates it.
type ProductStock struct {
	ID               int64
	FranchiseID      int64
	SKU              string
	Name             string
	StockQuantity    int64
	ReservedQuantity int64
	BuyingPrice      float64
	SellingPrice     float64
	TotalSold        int64
	TotalRevenue     float64
	TotalProfit      float64
	LastSold         *time.Time
}

// Available is stock quantity minus reserved quantity.
func (p ProductStock) Available() int64 { return p.StockQuantity - p.ReservedQuantity }

func (p ProductStock) levels() Levels {
	return Levels{ProductID: p.ID, StockQuantity: p.StockQuantity, ReservedQuantity: p.ReservedQuantity}
}

// MovementType enumerates the stock movement journal entries.
type MovementType string

const (
	MovementReserve     MovementType = "RESERVE"
	MovementRelease     MovementType = "RELEASE"
	MovementCommit      MovementType = "COMMIT"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementAdjust      MovementType = "ADJUST"
)

// Movement is one journal row; every ledger mutation appends one per product
// touched.
type Movement struct {
	ProductID  int64
	Type       MovementType
	Quantity   int64
	ActorID    int64
	RefModule  string
	RefID      string
	Reason     string
	OccurredAt time.Time
}

// MutationRef identifies the actor and owning document of a mutation for the
// movement journal.
type MutationRef struct {
	ActorID int64
	Module  string
	RefID   string
	Reason  string
}

// CommitResult extends Levels with the monetary snapshot captured at commit
// time, used by callers to build immutable sale line items.
type CommitResult struct {
	Levels
	BuyingPrice  float64
	SellingPrice float64
	Revenue      float64
	Profit       float64
}

// MoveDirectInput describes a physical stock movement between two franchises.
type MoveDirectInput struct {
	SourceProductID int64
	DestFranchiseID int64
	Quantity        int64
	UnitCost        float64
	Ref             MutationRef
}

// MoveDirectResult reports both sides of a completed movement. Destination
// levels refer to the found-or-created product in the receiving franchise.
type MoveDirectResult struct {
	Source      Levels
	Destination Levels
	// DestCreated is true when the receiving franchise had no product with
	// this SKU and one was auto-provisioned.
	DestCreated bool
}
