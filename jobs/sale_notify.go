package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/stocklane/stocklane/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SaleNotificationJob announces recorded sales. Delivery is a structured log
// line; downstream channels subscribe to the log pipeline.
type SaleNotificationJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSaleNotificationJob wires dependencies for the notification handler.
func NewSaleNotificationJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SaleNotificationJob {
	return &SaleNotificationJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes sale notification tasks.
func (j *SaleNotificationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("sale notification: handler not configured")
	}
	var payload SaleNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSaleNotification)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var (
		code        string
		franchiseID int64
		totalAmount float64
	)
	err := j.Pool.QueryRow(ctx,
		`SELECT code, franchise_id, total_amount FROM sales WHERE id = $1`,
		payload.SaleID,
	).Scan(&code, &franchiseID, &totalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		// The sale was enqueued but never committed; nothing to announce.
		j.logger().Warn("sale notification for unknown sale", slog.Int64("sale_id", payload.SaleID))
		return nil
	}
	if err != nil {
		resultErr = err
		return resultErr
	}

	j.logger().Info("sale recorded",
		slog.Int64("sale_id", payload.SaleID),
		slog.String("code", code),
		slog.Int64("franchise_id", franchiseID),
		slog.Float64("total_amount", totalAmount),
	)
	return resultErr
}

func (j *SaleNotificationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SaleNotificationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
