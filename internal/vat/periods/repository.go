package periods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morava-erp/morava-erp/internal/platform/db"
)

// PgRepository is the PostgreSQL implementation of Repository.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository using the provided pool.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const periodColumns = `id, tenant_id, legal_entity_id, reference_id, start_date, end_date, status, is_locked,
output_vat, input_vat, vat_liability, computed_at, submitted_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (TaxPeriod, error) {
	var p TaxPeriod
	err := row.Scan(&p.ID, &p.TenantID, &p.LegalEntityID, &p.ReferenceID, &p.StartDate, &p.EndDate,
		&p.Status, &p.Locked, &p.OutputVAT, &p.InputVAT, &p.VATLiability,
		&p.ComputedAt, &p.SubmittedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaxPeriod{}, ErrPeriodNotFound
	}
	if err != nil {
		return TaxPeriod{}, fmt.Errorf("periods: scan period: %w", err)
	}
	return p, nil
}

// InsertPeriod creates a new period row.
func (r *PgRepository) InsertPeriod(ctx context.Context, period TaxPeriod) (TaxPeriod, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO tax_periods
(tenant_id, legal_entity_id, reference_id, start_date, end_date, status, is_locked,
 output_vat, input_vat, vat_liability, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, false, 0, 0, 0, $7, $7)
RETURNING `+periodColumns,
		period.TenantID, period.LegalEntityID, period.ReferenceID,
		period.StartDate, period.EndDate, period.Status, period.CreatedAt)
	return scanPeriod(row)
}

// RangeConflict reports whether the range overlaps an existing period of the
// same legal entity. Both dates are inclusive.
func (r *PgRepository) RangeConflict(ctx context.Context, tenantID uuid.UUID, legalEntityID *int64, start, end time.Time) (bool, error) {
	var conflict bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM tax_periods
WHERE tenant_id = $1
  AND legal_entity_id IS NOT DISTINCT FROM $2
  AND start_date <= $4 AND end_date >= $3)`,
		tenantID, legalEntityID, start, end).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("periods: range conflict: %w", err)
	}
	return conflict, nil
}

// GetPeriod fetches one period scoped to the tenant.
func (r *PgRepository) GetPeriod(ctx context.Context, tenantID uuid.UUID, id int64) (TaxPeriod, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM tax_periods WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanPeriod(row)
}

// ListPeriods returns paginated periods ordered by start date descending.
func (r *PgRepository) ListPeriods(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]TaxPeriod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+periodColumns+` FROM tax_periods WHERE tenant_id = $1 ORDER BY start_date DESC, id DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("periods: list: %w", err)
	}
	defer rows.Close()
	var periods []TaxPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("periods: list rows: %w", err)
	}
	return periods, nil
}

// LatestFiledBefore returns the snapshot of the most recent submitted or
// closed period of the entity ending before the given date, or nil.
func (r *PgRepository) LatestFiledBefore(ctx context.Context, tenantID uuid.UUID, legalEntityID *int64, before time.Time) (*Snapshot, error) {
	row := r.pool.QueryRow(ctx, `SELECT s.tenant_id, s.legal_entity_id, s.period_start, s.period_end,
s.popdv_data, s.pppdv_data, s.output_vat, s.input_vat, s.net_vat
FROM tax_periods p
JOIN vat_snapshots s
  ON s.tenant_id = p.tenant_id AND s.period_start = p.start_date AND s.period_end = p.end_date
WHERE p.tenant_id = $1
  AND p.legal_entity_id IS NOT DISTINCT FROM $2
  AND p.status IN ('SUBMITTED', 'CLOSED')
  AND p.end_date < $3
ORDER BY p.end_date DESC
LIMIT 1`, tenantID, legalEntityID, before)
	snap, err := scanSnapshot(row)
	if errors.Is(err, ErrNotComputed) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ReplaceComputation atomically rewrites the period's aggregated lines,
// upserts the snapshot and updates the period totals. An advisory lock on the
// period id serializes concurrent calculate calls; the status guard rejects
// the write if the period was locked or advanced concurrently.
func (r *PgRepository) ReplaceComputation(ctx context.Context, comp Computation) error {
	period := comp.Period
	popdvData, err := json.Marshal(comp.Snapshot.Popdv)
	if err != nil {
		return fmt.Errorf("periods: marshal popdv: %w", err)
	}
	pppdvData, err := json.Marshal(comp.Snapshot.PpPdv)
	if err != nil {
		return fmt.Errorf("periods: marshal pppdv: %w", err)
	}

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, period.ID); err != nil {
			return fmt.Errorf("periods: advisory lock: %w", err)
		}

		tag, err := tx.Exec(ctx, `UPDATE tax_periods
SET status = $2, output_vat = $3, input_vat = $4, vat_liability = $5, computed_at = $6, updated_at = $6
WHERE id = $1 AND is_locked = false AND status IN ('OPEN', 'CALCULATED')`,
			period.ID, period.Status, period.OutputVAT, period.InputVAT, period.VATLiability, period.ComputedAt)
		if err != nil {
			return fmt.Errorf("periods: update totals: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: period changed concurrently", ErrInvalidTransition)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM popdv_aggregated_lines WHERE period_id = $1`, period.ID); err != nil {
			return fmt.Errorf("periods: delete lines: %w", err)
		}
		for _, line := range comp.Lines {
			if _, err := tx.Exec(ctx, `INSERT INTO popdv_aggregated_lines
(period_id, section, popdv_field, direction, total_base, total_vat, vat_os, vat_ps, entry_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				period.ID, line.Section, line.PopdvField, line.Direction,
				line.TotalBase, line.TotalVAT, line.VATOS, line.VATPS, line.EntryCount); err != nil {
				return fmt.Errorf("periods: insert line: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `INSERT INTO vat_snapshots
(tenant_id, legal_entity_id, period_start, period_end, popdv_data, pppdv_data, output_vat, input_vat, net_vat, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (tenant_id, period_start, period_end) DO UPDATE SET
  legal_entity_id = EXCLUDED.legal_entity_id,
  popdv_data = EXCLUDED.popdv_data,
  pppdv_data = EXCLUDED.pppdv_data,
  output_vat = EXCLUDED.output_vat,
  input_vat = EXCLUDED.input_vat,
  net_vat = EXCLUDED.net_vat,
  computed_at = EXCLUDED.computed_at`,
			comp.Snapshot.TenantID, comp.Snapshot.LegalEntityID,
			comp.Snapshot.PeriodStart, comp.Snapshot.PeriodEnd,
			popdvData, pppdvData,
			comp.Snapshot.OutputVAT, comp.Snapshot.InputVAT, comp.Snapshot.NetVAT,
			period.ComputedAt); err != nil {
			return fmt.Errorf("periods: upsert snapshot: %w", err)
		}
		return nil
	})
}

// GetSnapshot loads the latest computed snapshot for the period key.
func (r *PgRepository) GetSnapshot(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (Snapshot, error) {
	row := r.pool.QueryRow(ctx, `SELECT tenant_id, legal_entity_id, period_start, period_end,
popdv_data, pppdv_data, output_vat, input_vat, net_vat
FROM vat_snapshots
WHERE tenant_id = $1 AND period_start = $2 AND period_end = $3`, tenantID, start, end)
	return scanSnapshot(row)
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var snap Snapshot
	var popdvData, pppdvData []byte
	err := row.Scan(&snap.TenantID, &snap.LegalEntityID, &snap.PeriodStart, &snap.PeriodEnd,
		&popdvData, &pppdvData, &snap.OutputVAT, &snap.InputVAT, &snap.NetVAT)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotComputed
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("periods: scan snapshot: %w", err)
	}
	if err := json.Unmarshal(popdvData, &snap.Popdv); err != nil {
		return Snapshot{}, fmt.Errorf("periods: decode popdv: %w", err)
	}
	if err := json.Unmarshal(pppdvData, &snap.PpPdv); err != nil {
		return Snapshot{}, fmt.Errorf("periods: decode pppdv: %w", err)
	}
	return snap, nil
}

// AggregatedLines returns the stored buckets of the latest computation.
func (r *PgRepository) AggregatedLines(ctx context.Context, periodID int64) ([]StoredLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT section, popdv_field, direction, total_base, total_vat, vat_os, vat_ps, entry_count
FROM popdv_aggregated_lines WHERE period_id = $1 ORDER BY section, popdv_field`, periodID)
	if err != nil {
		return nil, fmt.Errorf("periods: aggregated lines: %w", err)
	}
	defer rows.Close()
	var lines []StoredLine
	for rows.Next() {
		var line StoredLine
		if err := rows.Scan(&line.Section, &line.PopdvField, &line.Direction,
			&line.TotalBase, &line.TotalVAT, &line.VATOS, &line.VATPS, &line.EntryCount); err != nil {
			return nil, fmt.Errorf("periods: scan line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("periods: aggregated rows: %w", err)
	}
	return lines, nil
}

// SetStatus transitions the period with an optimistic from-status guard so a
// concurrent transition cannot be silently overwritten.
func (r *PgRepository) SetStatus(ctx context.Context, id int64, from, to Status, at time.Time) error {
	query := `UPDATE tax_periods SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	if to == StatusSubmitted {
		query = `UPDATE tax_periods SET status = $3, submitted_at = $4, updated_at = $4 WHERE id = $1 AND status = $2`
	}
	tag, err := r.pool.Exec(ctx, query, id, from, to, at)
	if err != nil {
		return fmt.Errorf("periods: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: period is no longer %s", ErrInvalidTransition, from)
	}
	return nil
}

// SetLocked toggles the lock flag.
func (r *PgRepository) SetLocked(ctx context.Context, id int64, locked bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tax_periods SET is_locked = $2, updated_at = now() WHERE id = $1`, id, locked)
	if err != nil {
		return fmt.Errorf("periods: set locked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// StalePeriods returns CALCULATED, unlocked periods computed before source
// postings kept landing in their range. Used by the background stale scan.
func (r *PgRepository) StalePeriods(ctx context.Context, limit int) ([]TaxPeriod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+periodColumns+` FROM tax_periods
WHERE status = 'CALCULATED' AND is_locked = false AND computed_at IS NOT NULL
ORDER BY computed_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("periods: stale candidates: %w", err)
	}
	defer rows.Close()
	var periods []TaxPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("periods: stale rows: %w", err)
	}
	return periods, nil
}
