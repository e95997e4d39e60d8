package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/shared"
)

// Export moves stock out of the caller's franchise in bulk. Each row is the
// transfer workflow collapsed to an immediately completed transfer, executed
// in its own unit of work so one bad row cannot roll back its neighbours.
func (s *Service) Export(ctx context.Context, scope shared.Scope, rows []BulkMoveRow) []BulkOutcome {
	return s.bulkMove(ctx, scope, rows, false)
}

// Import moves stock into the caller's franchise in bulk. Rows name a source
// product in another franchise; the destination is always the caller's.
func (s *Service) Import(ctx context.Context, scope shared.Scope, rows []BulkMoveRow) []BulkOutcome {
	return s.bulkMove(ctx, scope, rows, true)
}

func (s *Service) bulkMove(ctx context.Context, scope shared.Scope, rows []BulkMoveRow, inbound bool) []BulkOutcome {
	batch := uuid.NewString()
	validate := validator.New(validator.WithRequiredStructEnabled())
	outcomes := make([]BulkOutcome, 0, len(rows))
	for i, row := range rows {
		outcome := BulkOutcome{Index: i}
		if err := validate.Struct(row); err != nil {
			outcome.Error = shared.UserSafeMessage(fmt.Errorf("%w: %v", shared.ErrValidation, err))
			outcomes = append(outcomes, outcome)
			continue
		}
		transfer, err := s.moveRow(ctx, scope, row, batch, inbound)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("bulk stock movement row failed",
					slog.String("batch", batch),
					slog.Int("index", i),
					slog.Int64("product_id", row.ProductID),
					slog.Any("error", err))
			}
			outcome.Error = shared.UserSafeMessage(err)
		} else {
			outcome.TransferID = transfer.ID
			outcome.Code = transfer.Code
		}
		outcomes = append(outcomes, outcome)
	}
	if s.cache != nil {
		for _, o := range outcomes {
			if o.Error == "" {
				if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
					s.logger.Warn("report cache bump failed", slog.Any("error", err))
				}
				break
			}
		}
	}
	return outcomes
}

// moveRow creates one already-completed transfer and moves its stock, all in
// one unit of work.
func (s *Service) moveRow(ctx context.Context, scope shared.Scope, row BulkMoveRow, batch string, inbound bool) (*Transfer, error) {
	var transfer *Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Stock().GetForUpdate(ctx, row.ProductID)
		if err != nil {
			return err
		}
		destFranchiseID := row.ToFranchiseID
		if inbound {
			destFranchiseID = scope.FranchiseID
			if destFranchiseID == 0 {
				return fmt.Errorf("%w: import requires a franchise-scoped caller", shared.ErrValidation)
			}
		} else if !scope.CoversFranchise(p.FranchiseID) {
			return fmt.Errorf("%w: product belongs to franchise %d", shared.ErrForbidden, p.FranchiseID)
		}
		if destFranchiseID == 0 {
			return fmt.Errorf("%w: toFranchiseId is required", shared.ErrValidation)
		}

		unitPrice := row.UnitPrice
		if unitPrice == 0 {
			unitPrice = p.BuyingPrice
		}
		now := time.Now().UTC()
		transfer = &Transfer{
			Code:            NewTransferCode(),
			ProductID:       p.ID,
			SKU:             p.SKU,
			FromFranchiseID: p.FranchiseID,
			ToFranchiseID:   destFranchiseID,
			Quantity:        row.Quantity,
			UnitPrice:       unitPrice,
			TotalValue:      unitPrice * float64(row.Quantity),
			Status:          StatusCompleted,
			Note:            row.Note,
			CreatedBy:       scope.UserID,
			ActualDelivery:  &now,
			CreatedAt:       now,
		}
		if _, err := s.ledger.MoveDirect(ctx, tx.Stock(), ledger.MoveDirectInput{
			SourceProductID: p.ID,
			DestFranchiseID: destFranchiseID,
			Quantity:        row.Quantity,
			UnitCost:        unitPrice,
			Ref:             ledger.MutationRef{ActorID: scope.UserID, Module: "transfers", RefID: transfer.Code, Reason: row.Note},
		}); err != nil {
			return err
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
	s.recordAudit(ctx, scope, "transfers:bulk", transfer.ID, map[string]any{"batch": batch, "code": transfer.Code, "qty": transfer.Quantity})
	return transfer, nil
}
