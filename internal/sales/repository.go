package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
)

// TxStore persists sale documents inside an open unit of work. The orders
// package reuses it to emit the sale when an order is delivered.
type TxStore interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
}

// TxRepository groups the transactional handles the service works with.
type TxRepository interface {
	Stock() ledger.TxStore
	Sales() TxStore
}

// Repository is the service-facing port.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetByID(ctx context.Context, id int64) (*Sale, error)
	List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error)
}

// PgRepository persists sales in PostgreSQL.
type PgRepository struct {
	pool  *pgxpool.Pool
	coord *db.Coordinator
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool, coord *db.Coordinator) *PgRepository {
	return &PgRepository{pool: pool, coord: coord}
}

type pgTxRepository struct {
	stock *ledger.TxRepository
	sales *PgTxStore
}

func (r *pgTxRepository) Stock() ledger.TxStore { return r.stock }
func (r *pgTxRepository) Sales() TxStore        { return r.sales }

// WithTx runs fn inside one coordinator unit of work.
func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return r.coord.RunInTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{stock: ledger.NewTxRepository(tx), sales: NewTxStore(tx)})
	})
}

// PgTxStore writes sale documents through one open transaction.
type PgTxStore struct {
	tx pgx.Tx
}

// NewTxStore binds the store to the transaction handle.
func NewTxStore(tx pgx.Tx) *PgTxStore {
	return &PgTxStore{tx: tx}
}

func (s *PgTxStore) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO sales (code, franchise_id, order_id, sale_type, payment_method, total_amount, total_profit, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		sale.Code, sale.FranchiseID, sale.OrderID, string(sale.Type), string(sale.PaymentMethod), sale.TotalAmount, sale.TotalProfit, sale.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range sale.Items {
		if _, err := s.tx.Exec(ctx, `INSERT INTO sale_items (sale_id, product_id, sku, quantity, buying_price, selling_price, subtotal, profit)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			id, item.ProductID, item.SKU, item.Quantity, item.BuyingPrice, item.SellingPrice, item.Subtotal, item.Profit); err != nil {
			return 0, err
		}
	}
	return id, nil
}

const saleColumns = `id, code, franchise_id, order_id, sale_type, payment_method, total_amount, total_profit, created_by, created_at`

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Sale, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, sku, quantity, buying_price, selling_price, subtotal, profit FROM sale_items WHERE sale_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.SKU, &item.Quantity, &item.BuyingPrice, &item.SellingPrice, &item.Subtotal, &item.Profit); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (r *PgRepository) List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales
WHERE franchise_id=$1 AND ($2::text IS NULL OR sale_type=$2) AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')`,
		req.FranchiseID, nullSaleType(req.Type), req.DateFrom, req.DateTo).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales
WHERE franchise_id=$1 AND ($2::text IS NULL OR sale_type=$2) AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6`,
		req.FranchiseID, nullSaleType(req.Type), req.DateFrom, req.DateTo, limit, req.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func scanSale(row pgx.Row) (*Sale, error) {
	var sale Sale
	var saleType, payment string
	if err := row.Scan(&sale.ID, &sale.Code, &sale.FranchiseID, &sale.OrderID, &saleType, &payment, &sale.TotalAmount, &sale.TotalProfit, &sale.CreatedBy, &sale.CreatedAt); err != nil {
		return nil, err
	}
	sale.Type = SaleType(saleType)
	sale.PaymentMethod = PaymentMethod(payment)
	return &sale, nil
}

func nullSaleType(t *SaleType) any {
	if t == nil {
		return nil
	}
	return string(*t)
}
