package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/stocklane/stocklane/internal/jobs"
)

// LowStockScanJob sweeps active products whose available units (on hand minus
// reserved) sit at or below the threshold.
type LowStockScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the sweep handler.
func NewLowStockScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Pool: pool, Logger: logger, Metrics: metrics}
}

type lowStockRow struct {
	FranchiseID int64
	ProductID   int64
	SKU         string
	Name        string
	Available   int64
}

// Handle processes low-stock sweep tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Threshold <= 0 {
		payload.Threshold = 5
	}

	tracker := j.metrics().Track(TaskLowStockScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	rows, err := j.Pool.Query(ctx, `
		SELECT franchise_id, id, sku, name, stock_quantity - reserved_quantity AS available
		FROM products
		WHERE is_active = TRUE
		  AND deleted_at IS NULL
		  AND stock_quantity - reserved_quantity <= $1
		ORDER BY franchise_id, available`, payload.Threshold)
	if err != nil {
		resultErr = err
		return resultErr
	}
	defer rows.Close()

	perFranchise := map[int64]int{}
	for rows.Next() {
		var row lowStockRow
		if err := rows.Scan(&row.FranchiseID, &row.ProductID, &row.SKU, &row.Name, &row.Available); err != nil {
			resultErr = err
			return resultErr
		}
		perFranchise[row.FranchiseID]++
		j.logger().Warn("product running low",
			slog.Int64("franchise_id", row.FranchiseID),
			slog.Int64("product_id", row.ProductID),
			slog.String("sku", row.SKU),
			slog.Int64("available", row.Available),
		)
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	for franchiseID, count := range perFranchise {
		j.metrics().SetLowStock(franchiseID, count)
	}
	j.logger().Info("completed low stock scan",
		slog.Int64("threshold", payload.Threshold),
		slog.Int("franchises", len(perFranchise)),
	)
	return resultErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LowStockScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
