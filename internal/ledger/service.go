package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stocklane/stocklane/internal/shared"
)

// TxStore exposes the product-row operations available inside one unit of
// work. Implementations are bound to the transaction the coordinator opened;
// reads lock the row until the unit of work ends.
type TxStore interface {
	GetForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	GetBySKUForUpdate(ctx context.Context, franchiseID int64, sku string) (ProductStock, error)
	CreateProduct(ctx context.Context, p ProductStock) (int64, error)
	UpdateCounters(ctx context.Context, productID, stockQuantity, reservedQuantity int64) error
	ApplySale(ctx context.Context, productID, qty int64, revenue, profit float64, soldAt time.Time) error
	InsertMovement(ctx context.Context, m Movement) error
}

// Observer counts completed ledger operations for monitoring.
type Observer interface {
	ObserveStockOp(operation string, err error)
}

// Service implements the stock ledger operations. It is stateless; all state
// lives in the product rows reached through the TxStore of the enclosing unit
// of work. Operations are idempotency-unaware by design: callers must not
// retry blindly.
type Service struct {
	logger *slog.Logger
	obs    Observer
}

// NewService builds the ledger service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// WithObserver attaches an operation observer and returns the service.
func (s *Service) WithObserver(obs Observer) *Service {
	s.obs = obs
	return s
}

func (s *Service) observe(operation string, err error) {
	if s.obs != nil {
		s.obs.ObserveStockOp(operation, err)
	}
}

// Reserve earmarks qty units for a confirmed-but-undelivered order. Fails
// with InsufficientStock unless stock minus reserved covers qty.
func (s *Service) Reserve(ctx context.Context, store TxStore, productID, qty int64, ref MutationRef) (Levels, error) {
	lv, err := s.reserve(ctx, store, productID, qty, ref)
	s.observe("reserve", err)
	return lv, err
}

func (s *Service) reserve(ctx context.Context, store TxStore, productID, qty int64, ref MutationRef) (Levels, error) {
	if qty <= 0 {
		return Levels{}, fmt.Errorf("%w: reserve quantity must be positive, got %d", shared.ErrInvalidQuantity, qty)
	}
	p, err := store.GetForUpdate(ctx, productID)
	if err != nil {
		return Levels{}, err
	}
	if p.Available() < qty {
		return Levels{}, &shared.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Available()}
	}
	p.ReservedQuantity += qty
	if err := store.UpdateCounters(ctx, p.ID, p.StockQuantity, p.ReservedQuantity); err != nil {
		return Levels{}, err
	}
	if err := s.journal(ctx, store, p.ID, MovementReserve, qty, ref); err != nil {
		return Levels{}, err
	}
	return p.levels(), nil
}

// Release reverses a reservation. Going below zero reserved indicates a
// caller bug, not a user error.
func (s *Service) Release(ctx context.Context, store TxStore, productID, qty int64, ref MutationRef) (Levels, error) {
	lv, err := s.release(ctx, store, productID, qty, ref)
	s.observe("release", err)
	return lv, err
}

func (s *Service) release(ctx context.Context, store TxStore, productID, qty int64, ref MutationRef) (Levels, error) {
	if qty <= 0 {
		return Levels{}, fmt.Errorf("%w: release quantity must be positive, got %d", shared.ErrInvalidQuantity, qty)
	}
	p, err := store.GetForUpdate(ctx, productID)
	if err != nil {
		return Levels{}, err
	}
	if p.ReservedQuantity < qty {
		s.warn("release exceeds reservation", productID, qty, p)
		return Levels{}, fmt.Errorf("%w: release of %d exceeds reserved %d for product %d", shared.ErrInvalidState, qty, p.ReservedQuantity, productID)
	}
	p.ReservedQuantity -= qty
	if err := store.UpdateCounters(ctx, p.ID, p.StockQuantity, p.ReservedQuantity); err != nil {
		return Levels{}, err
	}
	if err := s.journal(ctx, store, p.ID, MovementRelease, qty, ref); err != nil {
		return Levels{}, err
	}
	return p.levels(), nil
}

// Commit permanently removes qty reserved units upon delivery, updating the
// sales aggregates with the buying price captured now. The only operation
// that removes stock on the order path.
func (s *Service) Commit(ctx context.Context, store TxStore, productID, qty int64, sellingPrice float64, ref MutationRef) (CommitResult, error) {
	res, err := s.commit(ctx, store, productID, qty, sellingPrice, ref)
	s.observe("commit", err)
	return res, err
}

func (s *Service) commit(ctx context.Context, store TxStore, productID, qty int64, sellingPrice float64, ref MutationRef) (CommitResult, error) {
	if qty <= 0 {
		return CommitResult{}, fmt.Errorf("%w: commit quantity must be positive, got %d", shared.ErrInvalidQuantity, qty)
	}
	p, err := store.GetForUpdate(ctx, productID)
	if err != nil {
		return CommitResult{}, err
	}
	if p.ReservedQuantity < qty {
		s.warn("commit exceeds reservation", productID, qty, p)
		return CommitResult{}, fmt.Errorf("%w: commit of %d exceeds reserved %d for product %d", shared.ErrInvalidState, qty, p.ReservedQuantity, productID)
	}
	p.StockQuantity -= qty
	p.ReservedQuantity -= qty
	return s.applyCommit(ctx, store, p, qty, sellingPrice, ref)
}

// CommitDirect removes stock for a point-of-sale transaction with no prior
// reservation. The availability check still honours reserved units so a
// direct sale can never eat into stock promised to confirmed orders.
func (s *Service) CommitDirect(ctx context.Context, store TxStore, productID, qty int64, sellingPrice float64, ref MutationRef) (CommitResult, error) {
	res, err := s.commitDirect(ctx, store, productID, qty, sellingPrice, ref)
	s.observe("commit_direct", err)
	return res, err
}

func (s *Service) commitDirect(ctx context.Context, store TxStore, productID, qty int64, sellingPrice float64, ref MutationRef) (CommitResult, error) {
	if qty <= 0 {
		return CommitResult{}, fmt.Errorf("%w: commit quantity must be positive, got %d", shared.ErrInvalidQuantity, qty)
	}
	p, err := store.GetForUpdate(ctx, productID)
	if err != nil {
		return CommitResult{}, err
	}
	if p.Available() < qty {
		return CommitResult{}, &shared.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Available()}
	}
	p.StockQuantity -= qty
	return s.applyCommit(ctx, store, p, qty, sellingPrice, ref)
}

func (s *Service) applyCommit(ctx context.Context, store TxStore, p ProductStock, qty int64, sellingPrice float64, ref MutationRef) (CommitResult, error) {
	now := time.Now().UTC()
	revenue := sellingPrice * float64(qty)
	profit := (sellingPrice - p.BuyingPrice) * float64(qty)
	if err := store.UpdateCounters(ctx, p.ID, p.StockQuantity, p.ReservedQuantity); err != nil {
		return CommitResult{}, err
	}
	if err := store.ApplySale(ctx, p.ID, qty, revenue, profit, now); err != nil {
		return CommitResult{}, err
	}
	if err := s.journal(ctx, store, p.ID, MovementCommit, qty, ref); err != nil {
		return CommitResult{}, err
	}
	return CommitResult{
		Levels:       p.levels(),
		BuyingPrice:  p.BuyingPrice,
		SellingPrice: sellingPrice,
		Revenue:      revenue,
		Profit:       profit,
	}, nil
}

// MoveDirect physically moves stock between franchises for a completed
// transfer: the source is debited and the destination product, found or
// created by (sku, franchise), is credited. A newly created destination
// adopts the unit cost as its buying price. The source check honours reserved
// units: a transfer may not dip into stock promised to confirmed orders.
func (s *Service) MoveDirect(ctx context.Context, store TxStore, in MoveDirectInput) (MoveDirectResult, error) {
	res, err := s.moveDirect(ctx, store, in)
	s.observe("move_direct", err)
	return res, err
}

func (s *Service) moveDirect(ctx context.Context, store TxStore, in MoveDirectInput) (MoveDirectResult, error) {
	if in.Quantity <= 0 {
		return MoveDirectResult{}, fmt.Errorf("%w: transfer quantity must be positive, got %d", shared.ErrInvalidQuantity, in.Quantity)
	}
	src, err := store.GetForUpdate(ctx, in.SourceProductID)
	if err != nil {
		return MoveDirectResult{}, err
	}
	if src.FranchiseID == in.DestFranchiseID {
		return MoveDirectResult{}, fmt.Errorf("%w: source and destination franchise are the same", shared.ErrValidation)
	}
	if src.Available() < in.Quantity {
		return MoveDirectResult{}, &shared.InsufficientStockError{ProductID: src.ID, Requested: in.Quantity, Available: src.Available()}
	}
	src.StockQuantity -= in.Quantity
	if err := store.UpdateCounters(ctx, src.ID, src.StockQuantity, src.ReservedQuantity); err != nil {
		return MoveDirectResult{}, err
	}
	if err := s.journal(ctx, store, src.ID, MovementTransferOut, in.Quantity, in.Ref); err != nil {
		return MoveDirectResult{}, err
	}

	sku := strings.ToUpper(strings.TrimSpace(src.SKU))
	dest, err := store.GetBySKUForUpdate(ctx, in.DestFranchiseID, sku)
	created := false
	switch {
	case errors.Is(err, shared.ErrNotFound):
		created = true
		dest = ProductStock{
			FranchiseID:   in.DestFranchiseID,
			SKU:           sku,
			Name:          src.Name,
			StockQuantity: in.Quantity,
			BuyingPrice:   in.UnitCost,
			SellingPrice:  src.SellingPrice,
		}
		id, err := store.CreateProduct(ctx, dest)
		if err != nil {
			return MoveDirectResult{}, err
		}
		dest.ID = id
	case err != nil:
		return MoveDirectResult{}, err
	default:
		dest.StockQuantity += in.Quantity
		if err := store.UpdateCounters(ctx, dest.ID, dest.StockQuantity, dest.ReservedQuantity); err != nil {
			return MoveDirectResult{}, err
		}
	}
	if err := s.journal(ctx, store, dest.ID, MovementTransferIn, in.Quantity, in.Ref); err != nil {
		return MoveDirectResult{}, err
	}
	return MoveDirectResult{Source: src.levels(), Destination: dest.levels(), DestCreated: created}, nil
}

// Adjust applies a manual stock correction. The result may not drop on-hand
// stock below zero or below the reserved quantity.
func (s *Service) Adjust(ctx context.Context, store TxStore, productID, delta int64, ref MutationRef) (Levels, error) {
	lv, err := s.adjust(ctx, store, productID, delta, ref)
	s.observe("adjust", err)
	return lv, err
}

func (s *Service) adjust(ctx context.Context, store TxStore, productID, delta int64, ref MutationRef) (Levels, error) {
	if delta == 0 {
		return Levels{}, fmt.Errorf("%w: adjustment delta must be non-zero", shared.ErrInvalidQuantity)
	}
	p, err := store.GetForUpdate(ctx, productID)
	if err != nil {
		return Levels{}, err
	}
	next := p.StockQuantity + delta
	if next < 0 || next < p.ReservedQuantity {
		return Levels{}, fmt.Errorf("%w: adjustment of %+d leaves stock %d below reserved %d for product %d", shared.ErrInvalidQuantity, delta, next, p.ReservedQuantity, productID)
	}
	p.StockQuantity = next
	if err := store.UpdateCounters(ctx, p.ID, p.StockQuantity, p.ReservedQuantity); err != nil {
		return Levels{}, err
	}
	if err := s.journal(ctx, store, p.ID, MovementAdjust, delta, ref); err != nil {
		return Levels{}, err
	}
	return p.levels(), nil
}

func (s *Service) journal(ctx context.Context, store TxStore, productID int64, typ MovementType, qty int64, ref MutationRef) error {
	return store.InsertMovement(ctx, Movement{
		ProductID:  productID,
		Type:       typ,
		Quantity:   qty,
		ActorID:    ref.ActorID,
		RefModule:  ref.Module,
		RefID:      ref.RefID,
		Reason:     ref.Reason,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *Service) warn(msg string, productID, qty int64, p ProductStock) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg,
		slog.Int64("product_id", productID),
		slog.Int64("qty", qty),
		slog.Int64("stock", p.StockQuantity),
		slog.Int64("reserved", p.ReservedQuantity))
}
