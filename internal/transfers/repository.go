package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
)

// PgRepository persists transfers in PostgreSQL.
type PgRepository struct {
	pool  *pgxpool.Pool
	coord *db.Coordinator
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool, coord *db.Coordinator) *PgRepository {
	return &PgRepository{pool: pool, coord: coord}
}

type pgTxRepository struct {
	tx    pgx.Tx
	stock *ledger.TxRepository
}

func (r *pgTxRepository) Stock() ledger.TxStore { return r.stock }

// WithTx runs fn inside one coordinator unit of work.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return r.coord.RunInTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx, stock: ledger.NewTxRepository(tx)})
	})
}

const transferColumns = `id, code, product_id, sku, from_franchise_id, to_franchise_id, quantity, unit_price, total_value, status, note, created_by, approved_by, actual_delivery, created_at, updated_at`

func (r *pgTxRepository) GetTransferForUpdate(ctx context.Context, id int64) (*Transfer, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id)
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return transfer, nil
}

func (r *pgTxRepository) InsertTransfer(ctx context.Context, t *Transfer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfers (code, product_id, sku, from_franchise_id, to_franchise_id, quantity, unit_price, total_value, status, note, created_by, approved_by, actual_delivery, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW()) RETURNING id`,
		t.Code, t.ProductID, t.SKU, t.FromFranchiseID, t.ToFranchiseID, t.Quantity, t.UnitPrice, t.TotalValue, string(t.Status), t.Note, t.CreatedBy, t.ApprovedBy, t.ActualDelivery).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *pgTxRepository) UpdateTransfer(ctx context.Context, id int64, status Status, approvedBy *int64, actualDelivery *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfers SET status=$2,
approved_by=COALESCE($3, approved_by),
actual_delivery=COALESCE($4, actual_delivery),
updated_at=NOW()
WHERE id=$1`, id, string(status), approvedBy, actualDelivery)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Transfer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id)
	transfer, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transfer %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return transfer, nil
}

func (r *PgRepository) List(ctx context.Context, req ListTransfersRequest) ([]Transfer, int, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfers
WHERE (from_franchise_id=$1 OR to_franchise_id=$1) AND ($2::text IS NULL OR status=$2)
AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')`,
		req.FranchiseID, nullStatus(req.Status), req.DateFrom, req.DateTo).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+` FROM transfers
WHERE (from_franchise_id=$1 OR to_franchise_id=$1) AND ($2::text IS NULL OR status=$2)
AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6`,
		req.FranchiseID, nullStatus(req.Status), req.DateFrom, req.DateTo, limit, req.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Transfer{}
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func scanTransfer(row pgx.Row) (*Transfer, error) {
	var t Transfer
	var status string
	if err := row.Scan(&t.ID, &t.Code, &t.ProductID, &t.SKU, &t.FromFranchiseID, &t.ToFranchiseID, &t.Quantity, &t.UnitPrice, &t.TotalValue, &status, &t.Note, &t.CreatedBy, &t.ApprovedBy, &t.ActualDelivery, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}

func nullStatus(s *Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
