package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/shared"
)

// PgRepository persists the catalogue in PostgreSQL.
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

const productColumns = `id, franchise_id, sku, name, description, category, buying_price, selling_price, stock_quantity, reserved_quantity, total_sold, total_revenue, total_profit, last_sold, is_active, created_at, updated_at`

func (r *pgTxRepository) InsertProduct(ctx context.Context, p *Product) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products (franchise_id, sku, name, description, category, buying_price, selling_price, stock_quantity, reserved_quantity, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,NOW(),NOW()) RETURNING id`,
		p.FranchiseID, p.SKU, p.Name, p.Description, p.Category, p.BuyingPrice, p.SellingPrice, p.StockQuantity, p.IsActive).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *pgTxRepository) UpdateCatalog(ctx context.Context, id int64, req UpdateProductRequest) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET name=$2, description=$3, category=$4, buying_price=$5, selling_price=$6, is_active=$7, updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`,
		id, req.Name, req.Description, req.Category, req.BuyingPrice, req.SellingPrice, req.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *pgTxRepository) CountOpenReferences(ctx context.Context, id int64) (int64, error) {
	var open int64
	err := r.tx.QueryRow(ctx, `SELECT
(SELECT COUNT(*) FROM order_items oi JOIN orders o ON o.id=oi.order_id
 WHERE oi.product_id=$1 AND o.deleted_at IS NULL AND o.status NOT IN ('DELIVERED','CANCELLED'))
+
(SELECT COUNT(*) FROM transfers t WHERE t.product_id=$1 AND t.status IN ('pending','approved'))`, id).Scan(&open)
	if err != nil {
		return 0, err
	}
	return open, nil
}

func (r *pgTxRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET deleted_at=NOW(), is_active=FALSE, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	return err
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND deleted_at IS NULL`, id)
	return scanProduct(row, id)
}

func (r *PgRepository) GetBySKU(ctx context.Context, franchiseID int64, sku string) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE franchise_id=$1 AND sku=$2 AND deleted_at IS NULL`, franchiseID, sku)
	return scanProduct(row, 0)
}

func (r *PgRepository) List(ctx context.Context, req ListProductsRequest) ([]Product, int, error) {
	where := ` WHERE franchise_id=$1 AND deleted_at IS NULL`
	args := []any{req.FranchiseID}
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR sku ILIKE $` + n + `)`
	}
	if req.Category != "" {
		args = append(args, req.Category)
		where += ` AND category=$` + strconv.Itoa(len(args))
	}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		where += ` AND is_active=$` + strconv.Itoa(len(args))
	}
	if req.LowStock != nil {
		args = append(args, *req.LowStock)
		where += ` AND stock_quantity - reserved_quantity <= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, req.Offset)
	n := len(args)
	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY name ASC, id ASC LIMIT $` + strconv.Itoa(n-1) + ` OFFSET $` + strconv.Itoa(n)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows, 0)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func scanProduct(row pgx.Row, id int64) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.FranchiseID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.BuyingPrice, &p.SellingPrice, &p.StockQuantity, &p.ReservedQuantity, &p.TotalSold, &p.TotalRevenue, &p.TotalProfit, &p.LastSold, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}
