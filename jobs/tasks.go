package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskVATStaleScan flags calculated periods whose ledger moved after computation.
	TaskVATStaleScan = "vat:stale_scan"
	// TaskSnapshotWarmup primes the redis snapshot cache for a recalculated period.
	TaskSnapshotWarmup = "vat:snapshot_warmup"
)

// SnapshotWarmupPayload identifies the period snapshot to cache.
type SnapshotWarmupPayload struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// NewStaleScanTask constructs the periodic stale-scan task.
func NewStaleScanTask() *asynq.Task {
	return asynq.NewTask(TaskVATStaleScan, nil)
}

// NewSnapshotWarmupTask constructs a warmup task for one period.
func NewSnapshotWarmupTask(payload SnapshotWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotWarmup, data), nil
}
