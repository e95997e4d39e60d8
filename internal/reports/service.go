// Package reports aggregates sales and stock figures per franchise behind a
// versioned Redis cache.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/shared"
)

// SalesSummary is the aggregated result of a date range.
type SalesSummary struct {
	FranchiseID int64              `json:"franchiseId"`
	From        time.Time          `json:"from"`
	To          time.Time          `json:"to"`
	SaleCount   int64              `json:"saleCount"`
	TotalAmount float64            `json:"totalAmount"`
	TotalProfit float64            `json:"totalProfit"`
	ByType      map[string]float64 `json:"byType"`
	ByPayment   map[string]float64 `json:"byPayment"`
	TopProducts []TopProduct       `json:"topProducts"`
}

// TopProduct is one best-seller row.
type TopProduct struct {
	ProductID int64   `json:"productId"`
	SKU       string  `json:"sku"`
	Quantity  int64   `json:"quantity"`
	Revenue   float64 `json:"revenue"`
}

// LowStockItem is one product at or below the threshold.
type LowStockItem struct {
	ProductID        int64  `json:"productId"`
	SKU              string `json:"sku"`
	Name             string `json:"name"`
	StockQuantity    int64  `json:"stockQuantity"`
	ReservedQuantity int64  `json:"reservedQuantity"`
	Available        int64  `json:"available"`
}

// Service computes the reports. Queries run against the live tables; the
// cache in front absorbs repeated reads between invalidations.
type Service struct {
	pool   *pgxpool.Pool
	cache  *Cache
	logger *slog.Logger
}

// NewService builds Service. The cache may be nil in tests.
func NewService(pool *pgxpool.Pool, cache *Cache, logger *slog.Logger) *Service {
	return &Service{pool: pool, cache: cache, logger: logger}
}

// SalesSummary aggregates the franchise's sales between from and to.
func (s *Service) SalesSummary(ctx context.Context, scope shared.Scope, franchiseID int64, from, to time.Time) (*SalesSummary, error) {
	if franchiseID == 0 {
		franchiseID = scope.FranchiseID
	}
	if !scope.CoversFranchise(franchiseID) {
		return nil, fmt.Errorf("%w: report targets franchise %d", shared.ErrForbidden, franchiseID)
	}
	key, err := s.cache.BuildKey(ctx, "reports", "sales",
		fmt.Sprintf("%d", franchiseID), from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	var summary SalesSummary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return s.loadSalesSummary(ctx, franchiseID, from, to)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) loadSalesSummary(ctx context.Context, franchiseID int64, from, to time.Time) (*SalesSummary, error) {
	summary := &SalesSummary{
		FranchiseID: franchiseID,
		From:        from,
		To:          to,
		ByType:      map[string]float64{},
		ByPayment:   map[string]float64{},
	}
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount),0), COALESCE(SUM(total_profit),0)
FROM sales WHERE franchise_id=$1 AND created_at BETWEEN $2 AND $3`,
		franchiseID, from, to).Scan(&summary.SaleCount, &summary.TotalAmount, &summary.TotalProfit)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT sale_type, payment_method, COALESCE(SUM(total_amount),0)
FROM sales WHERE franchise_id=$1 AND created_at BETWEEN $2 AND $3
GROUP BY sale_type, payment_method`, franchiseID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var saleType, payment string
		var amount float64
		if err := rows.Scan(&saleType, &payment, &amount); err != nil {
			return nil, err
		}
		summary.ByType[saleType] += amount
		summary.ByPayment[payment] += amount
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top, err := s.pool.Query(ctx, `SELECT si.product_id, si.sku, SUM(si.quantity), SUM(si.subtotal)
FROM sale_items si JOIN sales sa ON sa.id=si.sale_id
WHERE sa.franchise_id=$1 AND sa.created_at BETWEEN $2 AND $3
GROUP BY si.product_id, si.sku ORDER BY SUM(si.quantity) DESC LIMIT 10`, franchiseID, from, to)
	if err != nil {
		return nil, err
	}
	defer top.Close()
	summary.TopProducts = []TopProduct{}
	for top.Next() {
		var tp TopProduct
		if err := top.Scan(&tp.ProductID, &tp.SKU, &tp.Quantity, &tp.Revenue); err != nil {
			return nil, err
		}
		summary.TopProducts = append(summary.TopProducts, tp)
	}
	return summary, top.Err()
}

// LowStock lists products whose available quantity is at or below threshold.
func (s *Service) LowStock(ctx context.Context, scope shared.Scope, franchiseID, threshold int64) ([]LowStockItem, error) {
	if franchiseID == 0 {
		franchiseID = scope.FranchiseID
	}
	if !scope.CoversFranchise(franchiseID) {
		return nil, fmt.Errorf("%w: report targets franchise %d", shared.ErrForbidden, franchiseID)
	}
	if threshold <= 0 {
		threshold = 5
	}
	key, err := s.cache.BuildKey(ctx, "reports", "lowstock", fmt.Sprintf("%d:%d", franchiseID, threshold))
	if err != nil {
		return nil, err
	}
	var items []LowStockItem
	err = s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (interface{}, error) {
		return s.loadLowStock(ctx, franchiseID, threshold)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) loadLowStock(ctx context.Context, franchiseID, threshold int64) ([]LowStockItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, sku, name, stock_quantity, reserved_quantity, stock_quantity - reserved_quantity
FROM products WHERE franchise_id=$1 AND deleted_at IS NULL AND is_active
AND stock_quantity - reserved_quantity <= $2
ORDER BY stock_quantity - reserved_quantity ASC, sku ASC`, franchiseID, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LowStockItem{}
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.StockQuantity, &item.ReservedQuantity, &item.Available); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
