package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity recomputes balances and flags drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportWarmup pre-builds the cached reports.
	TaskReportWarmup = "reports:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewLedgerIntegrityTask constructs the nightly integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewReportWarmupTask constructs the report cache warmup task.
func NewReportWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskReportWarmup, nil)
}

// NewIdempotencyCleanupTask constructs the key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
