package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerVerify recomputes every running balance and reports drift.
	TaskLedgerVerify = "ledger:verify"
	// TaskDashboardWarmup rebuilds the cached dashboard.
	TaskDashboardWarmup = "dashboard:warmup"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerVerifyPayload has no options yet; the struct keeps the wire format extendable.
type LedgerVerifyPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// DashboardWarmupPayload selects the activity window to prime.
type DashboardWarmupPayload struct {
	ActivityLimit int `json:"activity_limit"`
}

// IdempotencyCleanupPayload sets the retention for idempotency keys.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLedgerVerifyTask constructs a ledger verification task.
func NewLedgerVerifyTask(payload LedgerVerifyPayload) (*asynq.Task, error) {
	return newTask(TaskLedgerVerify, payload)
}

// NewDashboardWarmupTask constructs a dashboard warmup task.
func NewDashboardWarmupTask(payload DashboardWarmupPayload) (*asynq.Task, error) {
	return newTask(TaskDashboardWarmup, payload)
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, payload)
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, data), nil
}
