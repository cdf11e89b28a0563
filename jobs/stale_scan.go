package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/morava-erp/morava-erp/internal/ledger"
	"github.com/morava-erp/morava-erp/internal/vat/periods"
)

const staleScanBatch = 200

// StaleScanDeps collects what the stale scan needs.
type StaleScanDeps struct {
	Periods *periods.PgRepository
	Ledger  *ledger.Repository
	Logger  *slog.Logger
}

// NewStaleScanHandler returns the handler for TaskVATStaleScan. Postings can
// land between calculation and submission; the scan surfaces affected periods
// in the log instead of silently letting an outdated declaration go out.
func NewStaleScanHandler(deps StaleScanDeps) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		candidates, err := deps.Periods.StalePeriods(ctx, staleScanBatch)
		if err != nil {
			return err
		}
		flagged := 0
		for _, period := range candidates {
			if period.ComputedAt == nil {
				continue
			}
			stale, err := deps.Ledger.LatestPostingAfter(ctx, period.TenantID, period.LegalEntityID,
				period.StartDate, period.EndDate, *period.ComputedAt)
			if err != nil {
				return err
			}
			if stale {
				flagged++
				deps.Logger.Warn("period stale since computation, recalculate before submit",
					slog.Int64("period_id", period.ID),
					slog.String("tenant_id", period.TenantID.String()),
					slog.Time("computed_at", *period.ComputedAt))
			}
		}
		deps.Logger.Info("stale scan finished",
			slog.Int("candidates", len(candidates)), slog.Int("flagged", flagged))
		return nil
	}
}
