package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
)

// TxRepository is the catalogue store bound to one unit of work.
type TxRepository interface {
	InsertProduct(ctx context.Context, p *Product) (int64, error)
	UpdateCatalog(ctx context.Context, id int64, req UpdateProductRequest) error
	// CountOpenReferences counts order items of non-terminal orders and
	// unfinished transfers that still point at the product.
	CountOpenReferences(ctx context.Context, id int64) (int64, error)
	SoftDelete(ctx context.Context, id int64) error
	Stock() ledger.TxStore
}

// Repository is the catalogue persistence port.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetBySKU(ctx context.Context, franchiseID int64, sku string) (*Product, error)
	List(ctx context.Context, req ListProductsRequest) ([]Product, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the catalogue and delegates all stock movement to the
// ledger.
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

// Create registers a product. SKU is normalized to upper case; the
// franchise+SKU pair must be unique.
func (s *Service) Create(ctx context.Context, scope shared.Scope, req CreateProductRequest) (*Product, error) {
	if !scope.CoversFranchise(req.FranchiseID) {
		return nil, fmt.Errorf("%w: product targets franchise %d", shared.ErrForbidden, req.FranchiseID)
	}
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	var product *Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Stock().GetBySKUForUpdate(ctx, req.FranchiseID, sku); err == nil {
			return fmt.Errorf("%w: sku %s already exists in franchise %d", shared.ErrValidation, sku, req.FranchiseID)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		product = &Product{
			FranchiseID:   req.FranchiseID,
			SKU:           sku,
			Name:          req.Name,
			Description:   req.Description,
			Category:      req.Category,
			BuyingPrice:   req.BuyingPrice,
			SellingPrice:  req.SellingPrice,
			StockQuantity: req.InitialStock,
			IsActive:      true,
		}
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		if req.InitialStock > 0 {
			return tx.Stock().InsertMovement(ctx, ledger.Movement{
				ProductID:  id,
				Type:       ledger.MovementAdjust,
				Quantity:   req.InitialStock,
				ActorID:    scope.UserID,
				RefModule:  "products",
				RefID:      sku,
				Reason:     "initial stock",
				OccurredAt: time.Now().UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, "products:create", product.ID, map[string]any{"sku": sku})
	return product, nil
}

// Update edits catalogue fields. Counters are untouchable here.
func (s *Service) Update(ctx context.Context, scope shared.Scope, id int64, req UpdateProductRequest) (*Product, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Stock().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !scope.CoversFranchise(p.FranchiseID) {
			return fmt.Errorf("%w: product belongs to franchise %d", shared.ErrForbidden, p.FranchiseID)
		}
		return tx.UpdateCatalog(ctx, id, req)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, "products:update", id, nil)
	return s.repo.GetByID(ctx, id)
}

// Adjust applies a manual stock correction through the ledger. Negative
// deltas may not cut into reserved stock.
func (s *Service) Adjust(ctx context.Context, scope shared.Scope, id int64, req AdjustStockRequest) (ledger.Levels, error) {
	var levels ledger.Levels
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Stock().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !scope.CoversFranchise(p.FranchiseID) {
			return fmt.Errorf("%w: product belongs to franchise %d", shared.ErrForbidden, p.FranchiseID)
		}
		levels, err = s.ledger.Adjust(ctx, tx.Stock(), id, req.Delta, ledger.MutationRef{
			ActorID: scope.UserID,
			Module:  "products",
			RefID:   p.SKU,
			Reason:  req.Reason,
		})
		return err
	})
	if err != nil {
		return ledger.Levels{}, err
	}
	s.recordAudit(ctx, scope, "products:adjust", id, map[string]any{"delta": req.Delta, "reason": req.Reason})
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("report cache bump failed", slog.Any("error", err))
		}
	}
	return levels, nil
}

// Delete soft-deletes a product. Blocked while open orders or unfinished
// transfers still reference it.
func (s *Service) Delete(ctx context.Context, scope shared.Scope, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Stock().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !scope.CoversFranchise(p.FranchiseID) {
			return fmt.Errorf("%w: product belongs to franchise %d", shared.ErrForbidden, p.FranchiseID)
		}
		open, err := tx.CountOpenReferences(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: product is referenced by %d open orders or transfers", shared.ErrValidation, open)
		}
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, scope, "products:delete", id, nil)
	return nil
}

// Get returns one product within the caller's scope.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.CoversFranchise(p.FranchiseID) {
		return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return p, nil
}

// List returns catalogue entries of the caller's franchise.
func (s *Service) List(ctx context.Context, scope shared.Scope, req ListProductsRequest) ([]Product, int, error) {
	if req.FranchiseID == 0 {
		req.FranchiseID = scope.FranchiseID
	}
	if !scope.CoversFranchise(req.FranchiseID) {
		return nil, 0, fmt.Errorf("%w: listing targets franchise %d", shared.ErrForbidden, req.FranchiseID)
	}
	return s.repo.List(ctx, req)
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  scope.UserID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.Any("error", err))
	}
}
