package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator bumps the report cache after stock-moving writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Notifier enqueues a sale notification for asynchronous delivery.
type Notifier interface {
	SaleRecorded(ctx context.Context, saleID int64) error
}

// Service coordinates direct point-of-sale transactions.
type Service struct {
	repo     Repository
	ledger   *ledger.Service
	audit    AuditPort
	cache    Invalidator
	notifier Notifier
	logger   *slog.Logger
}

// NewService builds Service. Audit, cache and notifier are optional.
func NewService(repo Repository, ldg *ledger.Service, audit AuditPort, cache Invalidator, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ldg, audit: audit, cache: cache, notifier: notifier, logger: logger}
}

// NewSaleCode generates a document code for a sale.
func NewSaleCode() string {
	return fmt.Sprintf("SAL-%d", time.Now().UTC().UnixNano())
}

// CreateDirect records a point-of-sale transaction. Every item is committed
// through the ledger inside one unit of work; any failing item aborts the
// whole sale.
func (s *Service) CreateDirect(ctx context.Context, scope shared.Scope, req CreateSaleRequest) (*Sale, error) {
	if !scope.CoversFranchise(req.FranchiseID) {
		return nil, fmt.Errorf("%w: sale targets franchise %d", shared.ErrForbidden, req.FranchiseID)
	}
	var saleID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale := Sale{
			Code:          NewSaleCode(),
			FranchiseID:   req.FranchiseID,
			Type:          SaleTypePOS,
			PaymentMethod: req.PaymentMethod,
			CreatedBy:     scope.UserID,
		}
		for _, line := range req.Items {
			p, err := tx.Stock().GetForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if p.FranchiseID != req.FranchiseID {
				return fmt.Errorf("%w: product %d belongs to another franchise", shared.ErrForbidden, line.ProductID)
			}
			price := p.SellingPrice
			if line.SellingPrice != nil {
				price = *line.SellingPrice
			}
			res, err := s.ledger.CommitDirect(ctx, tx.Stock(), line.ProductID, line.Quantity, price, ledger.MutationRef{
				ActorID: scope.UserID,
				Module:  "sales",
				RefID:   sale.Code,
			})
			if err != nil {
				return err
			}
			sale.Items = append(sale.Items, SaleItem{
				ProductID:    line.ProductID,
				SKU:          p.SKU,
				Quantity:     line.Quantity,
				BuyingPrice:  res.BuyingPrice,
				SellingPrice: price,
				Subtotal:     res.Revenue,
				Profit:       res.Profit,
			})
			sale.TotalAmount += res.Revenue
			sale.TotalProfit += res.Profit
		}
		id, err := tx.Sales().InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		saleID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, scope, saleID)
	return s.repo.GetByID(ctx, saleID)
}

// Get returns one sale within the caller's franchise scope.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (*Sale, error) {
	sale, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.CoversFranchise(sale.FranchiseID) {
		return nil, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	return sale, nil
}

// List returns sales of the caller's franchise.
func (s *Service) List(ctx context.Context, scope shared.Scope, req ListSalesRequest) ([]Sale, int, error) {
	if req.FranchiseID == 0 {
		req.FranchiseID = scope.FranchiseID
	}
	if !scope.CoversFranchise(req.FranchiseID) {
		return nil, 0, fmt.Errorf("%w: franchise %d", shared.ErrForbidden, req.FranchiseID)
	}
	return s.repo.List(ctx, req)
}

func (s *Service) afterCommit(ctx context.Context, scope shared.Scope, saleID int64) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  scope.UserID,
			Action:   "sales:create",
			Entity:   "sale",
			EntityID: fmt.Sprintf("%d", saleID),
		})
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("report cache bump failed", slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.SaleRecorded(ctx, saleID); err != nil && s.logger != nil {
			s.logger.Warn("sale notification enqueue failed", slog.Any("error", err))
		}
	}
}
