package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
)

// PgRepository persists orders in PostgreSQL.
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
	sales *sales.PgTxStore
}

func (r *pgTxRepository) Stock() ledger.TxStore { return r.stock }
func (r *pgTxRepository) Sales() sales.TxStore  { return r.sales }

// WithTx runs fn inside one coordinator unit of work.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return r.coord.RunInTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx, stock: ledger.NewTxRepository(tx), sales: sales.NewTxStore(tx)})
	})
}

const orderColumns = `id, code, franchise_id, customer_name, payment_method, status, total_amount, note, created_by, confirmed_at, delivered_at, cancelled_at, deleted_at IS NOT NULL, created_at, updated_at`

func (r *pgTxRepository) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	items, err := loadItems(ctx, r.tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *pgTxRepository) InsertOrder(ctx context.Context, order *Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (code, franchise_id, customer_name, payment_method, status, total_amount, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		order.Code, order.FranchiseID, order.CustomerName, string(order.PaymentMethod), string(order.Status), order.TotalAmount, order.Note, order.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range order.Items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO order_items (order_id, product_id, sku, quantity, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5,$6)`, id, item.ProductID, item.SKU, item.Quantity, item.UnitPrice, item.Subtotal); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *pgTxRepository) ReplaceItems(ctx context.Context, orderID int64, items []Item) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	var total float64
	for _, item := range items {
		total += item.Subtotal
		if _, err := r.tx.Exec(ctx, `INSERT INTO order_items (order_id, product_id, sku, quantity, unit_price, subtotal)
VALUES ($1,$2,$3,$4,$5,$6)`, orderID, item.ProductID, item.SKU, item.Quantity, item.UnitPrice, item.Subtotal); err != nil {
			return err
		}
	}
	_, err := r.tx.Exec(ctx, `UPDATE orders SET total_amount=$2, updated_at=NOW() WHERE id=$1`, orderID, total)
	return err
}

func (r *pgTxRepository) UpdateStatus(ctx context.Context, id int64, status Status, stamps StatusStamps) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET status=$2,
confirmed_at=COALESCE($3, confirmed_at),
delivered_at=COALESCE($4, delivered_at),
cancelled_at=COALESCE($5, cancelled_at),
updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`, id, string(status), stamps.ConfirmedAt, stamps.DeliveredAt, stamps.CancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *pgTxRepository) MarkDeleted(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE orders SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	return err
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 AND deleted_at IS NULL`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	items, err := loadItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *PgRepository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders
WHERE franchise_id=$1 AND deleted_at IS NULL AND ($2::text IS NULL OR status=$2)
AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')`,
		req.FranchiseID, nullStatus(req.Status), req.DateFrom, req.DateTo).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
WHERE franchise_id=$1 AND deleted_at IS NULL AND ($2::text IS NULL OR status=$2)
AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6`,
		req.FranchiseID, nullStatus(req.Status), req.DateFrom, req.DateTo, limit, req.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q queryer, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, sku, quantity, unit_price, subtotal FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SKU, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var order Order
	var payment, status string
	if err := row.Scan(&order.ID, &order.Code, &order.FranchiseID, &order.CustomerName, &payment, &status, &order.TotalAmount, &order.Note, &order.CreatedBy, &order.ConfirmedAt, &order.DeliveredAt, &order.CancelledAt, &order.Deleted, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}
	order.PaymentMethod = sales.PaymentMethod(payment)
	order.Status = Status(status)
	return &order, nil
}

func nullStatus(s *Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
