package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
)

// TxRepository is the transfer store bound to one unit of work.
type TxRepository interface {
	GetTransferForUpdate(ctx context.Context, id int64) (*Transfer, error)
	InsertTransfer(ctx context.Context, t *Transfer) (int64, error)
	UpdateTransfer(ctx context.Context, id int64, status Status, approvedBy *int64, actualDelivery *time.Time) error
	Stock() ledger.TxStore
}

// Repository is the transfer persistence port.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetByID(ctx context.Context, id int64) (*Transfer, error)
	List(ctx context.Context, req ListTransfersRequest) ([]Transfer, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the transfer workflow. Every status change runs in its own
// unit of work; completion is the only transition that touches stock.
type Service struct {
	repo   Repository
	ledger *ledger.Service
	audit  AuditPort
	cache  sales.Invalidator
	logger *slog.Logger
}

// NewService builds Service. Audit and cache are optional.
func NewService(repo Repository, ldg *ledger.Service, audit AuditPort, cache sales.Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ldg, audit: audit, cache: cache, logger: logger}
}

// NewTransferCode generates a document code for a transfer.
func NewTransferCode() string {
	return fmt.Sprintf("TRF-%d", time.Now().UTC().UnixNano())
}

// Create proposes a transfer out of the caller's franchise. The stock check
// here is advisory only: stock may change before completion, which re-checks.
func (s *Service) Create(ctx context.Context, scope shared.Scope, req CreateTransferRequest) (*Transfer, error) {
	var transfer *Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Stock().GetForUpdate(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if !scope.CoversFranchise(p.FranchiseID) {
			return fmt.Errorf("%w: product belongs to franchise %d", shared.ErrForbidden, p.FranchiseID)
		}
		if p.FranchiseID == req.ToFranchiseID {
			return fmt.Errorf("%w: source and destination franchise are the same", shared.ErrValidation)
		}
		if p.StockQuantity < req.Quantity {
			return &shared.InsufficientStockError{ProductID: p.ID, Requested: req.Quantity, Available: p.StockQuantity}
		}
		unitPrice := req.UnitPrice
		if unitPrice == 0 {
			unitPrice = p.BuyingPrice
		}
		transfer = &Transfer{
			Code:            NewTransferCode(),
			ProductID:       p.ID,
			SKU:             p.SKU,
			FromFranchiseID: p.FranchiseID,
			ToFranchiseID:   req.ToFranchiseID,
			Quantity:        req.Quantity,
			UnitPrice:       unitPrice,
			TotalValue:      unitPrice * float64(req.Quantity),
			Status:          StatusPending,
			Note:            req.Note,
			CreatedBy:       scope.UserID,
			CreatedAt:       time.Now().UTC(),
		}
		id, err := tx.InsertTransfer(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, "transfers:create", transfer.ID, map[string]any{"code": transfer.Code, "qty": transfer.Quantity})
	return transfer, nil
}

// Approve authorizes a pending transfer. Only the receiving franchise may
// approve what is about to land in its inventory.
func (s *Service) Approve(ctx context.Context, scope shared.Scope, id int64) (*Transfer, error) {
	return s.transition(ctx, scope, id, StatusApproved)
}

// Reject declines a pending transfer. No stock moves; the decision is
// reversible only by creating a new transfer.
func (s *Service) Reject(ctx context.Context, scope shared.Scope, id int64) (*Transfer, error) {
	return s.transition(ctx, scope, id, StatusRejected)
}

// Cancel withdraws a pending or approved transfer before stock has moved.
func (s *Service) Cancel(ctx context.Context, scope shared.Scope, id int64) (*Transfer, error) {
	return s.transition(ctx, scope, id, StatusCancelled)
}

// Complete executes an approved transfer: stock is re-checked against the
// current level and physically moved. On insufficient stock the transfer
// stays approved for retry or cancellation.
func (s *Service) Complete(ctx context.Context, scope shared.Scope, id int64) (*Transfer, error) {
	return s.transition(ctx, scope, id, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, scope shared.Scope, id int64, next Status) (*Transfer, error) {
	var transfer *Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(scope, t, next); err != nil {
			return err
		}
		if !t.Status.CanTransitionTo(next) {
			return &shared.TransitionError{Entity: "transfer", From: string(t.Status), To: string(next)}
		}

		var approvedBy *int64
		var actualDelivery *time.Time
		switch next {
		case StatusApproved:
			approvedBy = &scope.UserID
			t.ApprovedBy = approvedBy
		case StatusCompleted:
			ref := ledger.MutationRef{ActorID: scope.UserID, Module: "transfers", RefID: t.Code}
			if _, err := s.ledger.MoveDirect(ctx, tx.Stock(), ledger.MoveDirectInput{
				SourceProductID: t.ProductID,
				DestFranchiseID: t.ToFranchiseID,
				Quantity:        t.Quantity,
				UnitCost:        t.UnitPrice,
				Ref:             ref,
			}); err != nil {
				return err
			}
			now := time.Now().UTC()
			actualDelivery = &now
			t.ActualDelivery = actualDelivery
		}

		if err := tx.UpdateTransfer(ctx, t.ID, next, approvedBy, actualDelivery); err != nil {
			return err
		}
		t.Status = next
		transfer = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, "transfers:"+string(next), id, map[string]any{"code": transfer.Code})
	if next == StatusCompleted && s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("report cache bump failed", slog.Any("error", err))
		}
	}
	return transfer, nil
}

// authorize enforces which side of the movement may drive each transition:
// the receiving franchise approves or rejects, the sending franchise cancels,
// and either side may complete.
func (s *Service) authorize(scope shared.Scope, t *Transfer, next Status) error {
	switch next {
	case StatusApproved, StatusRejected:
		if !scope.CoversFranchise(t.ToFranchiseID) {
			return fmt.Errorf("%w: only the receiving franchise may %s a transfer", shared.ErrForbidden, next)
		}
	case StatusCancelled:
		if !scope.CoversFranchise(t.FromFranchiseID) {
			return fmt.Errorf("%w: only the sending franchise may cancel a transfer", shared.ErrForbidden)
		}
	default:
		if !scope.CoversFranchise(t.FromFranchiseID) && !scope.CoversFranchise(t.ToFranchiseID) {
			return fmt.Errorf("%w: transfer involves franchises %d and %d", shared.ErrForbidden, t.FromFranchiseID, t.ToFranchiseID)
		}
	}
	return nil
}

// Get returns one transfer visible to the caller's scope.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (*Transfer, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.CoversFranchise(t.FromFranchiseID) && !scope.CoversFranchise(t.ToFranchiseID) {
		return nil, shared.ErrNotFound
	}
	return t, nil
}

// List returns transfers where the caller's franchise is either side.
func (s *Service) List(ctx context.Context, scope shared.Scope, req ListTransfersRequest) ([]Transfer, int, error) {
	if req.FranchiseID == 0 {
		req.FranchiseID = scope.FranchiseID
	}
	if !scope.CoversFranchise(req.FranchiseID) {
		return nil, 0, fmt.Errorf("%w: listing targets franchise %d", shared.ErrForbidden, req.FranchiseID)
	}
	return s.repo.List(ctx, req)
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action string, transferID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  scope.UserID,
		Action:   action,
		Entity:   "transfer",
		EntityID: fmt.Sprintf("%d", transferID),
		Meta:     meta,
		At:       time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
