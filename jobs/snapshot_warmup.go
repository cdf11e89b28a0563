package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/morava-erp/morava-erp/internal/vat/periods"
)

// SnapshotWarmupDeps collects what the warmup needs.
type SnapshotWarmupDeps struct {
	Periods *periods.PgRepository
	Cache   *periods.SnapshotCache
	Logger  *slog.Logger
}

// NewSnapshotWarmupHandler returns the handler for TaskSnapshotWarmup: load
// the period's snapshot from PostgreSQL and prime the redis cache.
func NewSnapshotWarmupHandler(deps SnapshotWarmupDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SnapshotWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		snapshot, err := deps.Periods.GetSnapshot(ctx, payload.TenantID, payload.PeriodStart, payload.PeriodEnd)
		if errors.Is(err, periods.ErrNotComputed) {
			// superseded before the task ran
			return nil
		}
		if err != nil {
			return err
		}
		if err := deps.Cache.Put(ctx, snapshot); err != nil {
			return err
		}
		deps.Logger.Info("snapshot cache primed",
			slog.String("tenant_id", payload.TenantID.String()),
			slog.Time("period_start", payload.PeriodStart))
		return nil
	}
}
