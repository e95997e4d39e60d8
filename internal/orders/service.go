package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
)

// TxRepository exposes the document and ledger operations available inside
// one unit of work.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (*Order, error)
	InsertOrder(ctx context.Context, order *Order) (int64, error)
	ReplaceItems(ctx context.Context, orderID int64, items []Item) error
	UpdateStatus(ctx context.Context, id int64, status Status, stamps StatusStamps) error
	MarkDeleted(ctx context.Context, id int64) error
	Stock() ledger.TxStore
	Sales() sales.TxStore
}

// Repository is the service-facing port.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the order fulfillment state machine.
type Service struct {
	repo     Repository
	ledger   *ledger.Service
	audit    AuditPort
	cache    sales.Invalidator
	notifier sales.Notifier
	logger   *slog.Logger
}

// NewService builds Service. Audit, cache and notifier are optional.
func NewService(repo Repository, ldg *ledger.Service, audit AuditPort, cache sales.Invalidator, notifier sales.Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ldg, audit: audit, cache: cache, notifier: notifier, logger: logger}
}

// Create creates a pending order. Unit prices are snapshot at creation; no
// stock moves until the order is confirmed.
func (s *Service) Create(ctx context.Context, scope shared.Scope, req CreateOrderRequest) (*Order, error) {
	if !scope.CoversFranchise(req.FranchiseID) {
		return nil, fmt.Errorf("%w: order targets franchise %d", shared.ErrForbidden, req.FranchiseID)
	}
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order := Order{
			Code:          fmt.Sprintf("ORD-%d", time.Now().UTC().UnixNano()),
			FranchiseID:   req.FranchiseID,
			CustomerName:  req.CustomerName,
			PaymentMethod: req.PaymentMethod,
			Status:        StatusPending,
			Note:          req.Note,
			CreatedBy:     scope.UserID,
		}
		items, err := s.buildItems(ctx, tx, req.FranchiseID, req.Items)
		if err != nil {
			return err
		}
		order.Items = items
		order.RecomputeTotal()
		id, err := tx.InsertOrder(ctx, &order)
		if err != nil {
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, "orders:create", orderID, nil)
	return s.repo.GetByID(ctx, orderID)
}

// UpdateItems replaces the items of a pending order. A delivered order is
// immutable; any other non-pending status rejects edits.
func (s *Service) UpdateItems(ctx context.Context, scope shared.Scope, id int64, req UpdateItemsRequest) (*Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !scope.CoversFranchise(order.FranchiseID) {
			return fmt.Errorf("%w: order %d", shared.ErrForbidden, id)
		}
		if order.Status == StatusDelivered {
			return fmt.Errorf("%w: delivered order %d", shared.ErrImmutableState, id)
		}
		if order.Status != StatusPending {
			return fmt.Errorf("%w: items can only be edited while pending, order is %s", shared.ErrValidation, order.Status)
		}
		items, err := s.buildItems(ctx, tx, order.FranchiseID, req.Items)
		if err != nil {
			return err
		}
		return tx.ReplaceItems(ctx, id, items)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// ChangeStatus advances the order through its lifecycle. All ledger
// mutations and the status write share one unit of work: either the whole
// transition applies or none of it does.
func (s *Service) ChangeStatus(ctx context.Context, scope shared.Scope, id int64, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, next)
	}
	var delivered bool
	var saleID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !scope.CoversFranchise(order.FranchiseID) {
			return fmt.Errorf("%w: order %d", shared.ErrForbidden, id)
		}
		if !order.Status.CanTransitionTo(next) {
			return &shared.TransitionError{Entity: "order", From: string(order.Status), To: string(next)}
		}

		ref := ledger.MutationRef{ActorID: scope.UserID, Module: "orders", RefID: order.Code}
		now := time.Now().UTC()
		stamps := StatusStamps{}

		switch next {
		case StatusConfirmed:
			// All-or-nothing: a failing item aborts the unit of work and
			// rolls back the reservations already made for earlier items.
			for _, item := range order.Items {
				if _, err := s.ledger.Reserve(ctx, tx.Stock(), item.ProductID, item.Quantity, ref); err != nil {
					return err
				}
			}
			stamps.ConfirmedAt = &now
		case StatusCancelled:
			// Nothing was reserved while pending.
			if order.Status != StatusPending {
				for _, item := range order.Items {
					if _, err := s.ledger.Release(ctx, tx.Stock(), item.ProductID, item.Quantity, ref); err != nil {
						return err
					}
				}
			}
			stamps.CancelledAt = &now
		case StatusDelivered:
			sale := sales.Sale{
				Code:          sales.NewSaleCode(),
				FranchiseID:   order.FranchiseID,
				OrderID:       &order.ID,
				Type:          sales.SaleTypeOnline,
				PaymentMethod: mapPaymentMethod(order.PaymentMethod),
				CreatedBy:     scope.UserID,
			}
			for _, item := range order.Items {
				res, err := s.ledger.Commit(ctx, tx.Stock(), item.ProductID, item.Quantity, item.UnitPrice, ref)
				if err != nil {
					return err
				}
				sale.Items = append(sale.Items, sales.SaleItem{
					ProductID:    item.ProductID,
					SKU:          item.SKU,
					Quantity:     item.Quantity,
					BuyingPrice:  res.BuyingPrice,
					SellingPrice: item.UnitPrice,
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
			delivered = true
			stamps.DeliveredAt = &now
		}
		return tx.UpdateStatus(ctx, id, next, stamps)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, scope, "orders:"+string(next), id, map[string]any{"sale_id": saleID})
	if delivered {
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
	return s.repo.GetByID(ctx, id)
}

// Delete soft-deletes an order. Delivered orders are immutable; an order
// holding a live reservation must be cancelled first.
func (s *Service) Delete(ctx context.Context, scope shared.Scope, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !scope.CoversFranchise(order.FranchiseID) {
			return fmt.Errorf("%w: order %d", shared.ErrForbidden, id)
		}
		if order.Status == StatusDelivered {
			return fmt.Errorf("%w: delivered order %d cannot be deleted", shared.ErrImmutableState, id)
		}
		if order.Status != StatusPending && order.Status != StatusCancelled {
			return fmt.Errorf("%w: cancel order %d before deleting it", shared.ErrValidation, id)
		}
		return tx.MarkDeleted(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, scope, "orders:delete", id, nil)
	return nil
}

// Get returns one order within the caller's franchise scope.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (*Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.CoversFranchise(order.FranchiseID) {
		return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return order, nil
}

// List returns orders of the caller's franchise.
func (s *Service) List(ctx context.Context, scope shared.Scope, req ListOrdersRequest) ([]Order, int, error) {
	if req.FranchiseID == 0 {
		req.FranchiseID = scope.FranchiseID
	}
	if !scope.CoversFranchise(req.FranchiseID) {
		return nil, 0, fmt.Errorf("%w: franchise %d", shared.ErrForbidden, req.FranchiseID)
	}
	return s.repo.List(ctx, req)
}

func (s *Service) buildItems(ctx context.Context, tx TxRepository, franchiseID int64, reqs []CreateOrderItemReq) ([]Item, error) {
	items := make([]Item, 0, len(reqs))
	for _, line := range reqs {
		p, err := tx.Stock().GetForUpdate(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if p.FranchiseID != franchiseID {
			return nil, fmt.Errorf("%w: product %d belongs to another franchise", shared.ErrForbidden, line.ProductID)
		}
		price := p.SellingPrice
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		items = append(items, Item{
			ProductID: line.ProductID,
			SKU:       p.SKU,
			Quantity:  line.Quantity,
			UnitPrice: price,
			Subtotal:  price * float64(line.Quantity),
		})
	}
	return items, nil
}

// mapPaymentMethod maps the order's payment method onto the emitted sale.
func mapPaymentMethod(m sales.PaymentMethod) sales.PaymentMethod {
	if m == sales.PaymentCOD {
		return sales.PaymentCash
	}
	return m
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  scope.UserID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}
