package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/stocklane/stocklane/internal/jobs"
	"github.com/stocklane/stocklane/internal/reports"
	"github.com/stocklane/stocklane/internal/shared"
)

// ReportWarmupJob pre-populates the report cache for every active franchise so
// the first dashboard hit after an invalidation does not pay the query cost.
type ReportWarmupJob struct {
	Reports *reports.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reportsSvc *reports.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reports: reportsSvc,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	franchiseIDs, err := j.fetchFranchiseIDs(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("load warmup franchises", slog.Any("error", err))
		return resultErr
	}
	if len(franchiseIDs) == 0 {
		j.logger().Info("no franchises discovered for warmup")
		return resultErr
	}

	now := j.now()
	scope := shared.Scope{Role: shared.RoleAdmin}
	warmed := 0
	for _, id := range franchiseIDs {
		if _, err := j.Reports.SalesSummary(ctx, scope, id, now.AddDate(0, 0, -30), now); err != nil {
			resultErr = err
			j.logger().Error("warm sales summary", slog.Int64("franchise_id", id), slog.Any("error", err))
			return resultErr
		}
		if _, err := j.Reports.LowStock(ctx, scope, id, 0); err != nil {
			resultErr = err
			j.logger().Error("warm low stock", slog.Int64("franchise_id", id), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	j.logger().Info("completed report warmup",
		slog.Int("franchises", warmed),
		slog.Duration("duration", time.Since(now)),
	)
	return resultErr
}

func (j *ReportWarmupJob) fetchFranchiseIDs(ctx context.Context) ([]int64, error) {
	rows, err := j.Pool.Query(ctx, `SELECT id FROM franchises WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
