package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stocklane/stocklane/internal/shared"
)

// TxRepository is the PostgreSQL TxStore bound to one open transaction.
// GetForUpdate and GetBySKUForUpdate lock the product row until the unit of
// work commits or rolls back, which is what makes concurrent reservations
// observe each other.
type TxRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps the transaction handle the coordinator opened.
func NewTxRepository(tx pgx.Tx) *TxRepository {
	return &TxRepository{tx: tx}
}

const productStockColumns = `id, franchise_id, sku, name, stock_quantity, reserved_quantity, buying_price, selling_price, total_sold, total_revenue, total_profit, last_sold`

func (r *TxRepository) GetForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+productStockColumns+` FROM products WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, productID)
	return scanProductStock(row, fmt.Sprintf("product %d", productID))
}

func (r *TxRepository) GetBySKUForUpdate(ctx context.Context, franchiseID int64, sku string) (ProductStock, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+productStockColumns+` FROM products WHERE franchise_id=$1 AND sku=$2 AND deleted_at IS NULL FOR UPDATE`, franchiseID, sku)
	return scanProductStock(row, fmt.Sprintf("product %s in franchise %d", sku, franchiseID))
}

func (r *TxRepository) CreateProduct(ctx context.Context, p ProductStock) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products (franchise_id, sku, name, stock_quantity, reserved_quantity, buying_price, selling_price, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,$5,$6,NOW(),NOW()) RETURNING id`,
		p.FranchiseID, p.SKU, p.Name, p.StockQuantity, p.BuyingPrice, p.SellingPrice).Scan(&id)
	return id, err
}

func (r *TxRepository) UpdateCounters(ctx context.Context, productID, stockQuantity, reservedQuantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET stock_quantity=$2, reserved_quantity=$3, updated_at=NOW() WHERE id=$1`, productID, stockQuantity, reservedQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, productID)
	}
	return nil
}

func (r *TxRepository) ApplySale(ctx context.Context, productID, qty int64, revenue, profit float64, soldAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE products
SET total_sold=total_sold+$2, total_revenue=total_revenue+$3, total_profit=total_profit+$4, last_sold=$5, updated_at=NOW()
WHERE id=$1`, productID, qty, revenue, profit, soldAt)
	return err
}

func (r *TxRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (product_id, movement_type, quantity, actor_id, ref_module, ref_id, reason, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ProductID, string(m.Type), m.Quantity, nullInt(m.ActorID), m.RefModule, nullStr(m.RefID), m.Reason, m.OccurredAt)
	return err
}

func scanProductStock(row pgx.Row, what string) (ProductStock, error) {
	var p ProductStock
	err := row.Scan(&p.ID, &p.FranchiseID, &p.SKU, &p.Name, &p.StockQuantity, &p.ReservedQuantity, &p.BuyingPrice, &p.SellingPrice, &p.TotalSold, &p.TotalRevenue, &p.TotalProfit, &p.LastSold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, fmt.Errorf("%w: %s", shared.ErrNotFound, what)
		}
		return ProductStock{}, err
	}
	return p, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
