package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSaleNotification dispatches a notification for a recorded sale.
	TaskSaleNotification = "sales:notify"
	// TaskLowStockScan sweeps products running at or below their threshold.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskReportWarmup pre-populates the report cache per franchise.
	TaskReportWarmup = "reports:warmup"
)

// SaleNotificationPayload identifies the sale to notify about.
type SaleNotificationPayload struct {
	SaleID int64 `json:"sale_id"`
}

// LowStockScanPayload carries sweep options.
type LowStockScanPayload struct {
	Threshold int64 `json:"threshold"`
}

// ReportWarmupPayload carries scheduling metadata.
type ReportWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSaleNotificationTask constructs an Asynq task for a sale notification.
func NewSaleNotificationTask(saleID int64) (*asynq.Task, error) {
	body, err := json.Marshal(SaleNotificationPayload{SaleID: saleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSaleNotification, body, asynq.Queue(QueueDefault)), nil
}

// NewLowStockScanTask constructs an Asynq task for the low-stock sweep.
func NewLowStockScanTask(threshold int64) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Threshold: threshold})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// NewReportWarmupTask constructs an Asynq task for report cache warmup.
func NewReportWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReportWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, body, asynq.Queue(QueueDefault)), nil
}
