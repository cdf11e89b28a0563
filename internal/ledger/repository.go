package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrEntityNotFound indicates the legal entity could not be resolved.
var ErrEntityNotFound = errors.New("ledger: legal entity not found")

// ErrAmbiguousEntity is returned when a tenant-wide scan needs a single
// filing entity but more than one is registered.
var ErrAmbiguousEntity = errors.New("ledger: tenant has multiple legal entities, one must be selected")

const scanBatchSize = 500

// Repository provides PostgreSQL backed read access to posted documents.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// table names per document class; every table shares the scanned column set.
var classTables = map[DocumentClass]string{
	ClassIssuedInvoice:   "issued_invoice_lines",
	ClassSupplierInvoice: "supplier_invoice_lines",
	ClassFiscalTill:      "fiscal_till_lines",
	ClassImportDocument:  "import_document_lines",
}

// ScanLines streams qualifying lines of one document class to fn, paging with
// a keyset cursor so arbitrarily large ranges never load into memory at once.
// A nil legalEntityID means all entities of the tenant. fn errors abort the
// scan and are returned as-is.
func (r *Repository) ScanLines(ctx context.Context, tenantID uuid.UUID, class DocumentClass, legalEntityID *int64, start, end time.Time, fn func(SourceLine) error) error {
	table, ok := classTables[class]
	if !ok {
		return fmt.Errorf("ledger: unknown document class %q", class)
	}

	query := fmt.Sprintf(`SELECT document_id, line_no, doc_date, legal_entity_id, base_amount, vat_amount, vat_rate, special_regime, is_export
FROM %s
WHERE tenant_id = $1
  AND ($2::bigint IS NULL OR legal_entity_id = $2)
  AND doc_date >= $3 AND doc_date <= $4
  AND (document_id, line_no) > ($5, $6)
ORDER BY document_id, line_no
LIMIT $7`, table)

	var cursorDoc int64
	var cursorLine int32 = -1

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := r.scanBatch(ctx, query, class, tenantID, legalEntityID, start, end, cursorDoc, cursorLine)
		if err != nil {
			return err
		}
		for _, line := range batch {
			if err := fn(line); err != nil {
				return err
			}
		}
		if len(batch) < scanBatchSize {
			return nil
		}
		last := batch[len(batch)-1]
		cursorDoc, cursorLine = last.DocumentID, last.LineNo
	}
}

func (r *Repository) scanBatch(ctx context.Context, query string, class DocumentClass, tenantID uuid.UUID, legalEntityID *int64, start, end time.Time, cursorDoc int64, cursorLine int32) ([]SourceLine, error) {
	rows, err := r.pool.Query(ctx, query, tenantID, legalEntityID, start, end, cursorDoc, cursorLine, scanBatchSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: scan %s: %w", class, err)
	}
	defer rows.Close()

	lines := make([]SourceLine, 0, scanBatchSize)
	for rows.Next() {
		line := SourceLine{DocClass: class}
		var base, vat, rate decimal.Decimal
		if err := rows.Scan(&line.DocumentID, &line.LineNo, &line.Date, &line.LegalEntityID, &base, &vat, &rate, &line.SpecialRegime, &line.Export); err != nil {
			return nil, fmt.Errorf("ledger: scan %s row: %w", class, err)
		}
		line.Base, line.VAT, line.Rate = base, vat, rate
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan %s rows: %w", class, err)
	}
	return lines, nil
}

// FilingEntity resolves the legal entity a declaration is filed for. When id
// is nil the tenant must have exactly one registered entity.
func (r *Repository) FilingEntity(ctx context.Context, tenantID uuid.UUID, id *int64) (LegalEntity, error) {
	if id != nil {
		var entity LegalEntity
		err := r.pool.QueryRow(ctx,
			`SELECT id, pib, registered_name FROM legal_entities WHERE tenant_id = $1 AND id = $2`,
			tenantID, *id,
		).Scan(&entity.ID, &entity.PIB, &entity.Name)
		if errors.Is(err, pgx.ErrNoRows) {
			return LegalEntity{}, ErrEntityNotFound
		}
		if err != nil {
			return LegalEntity{}, fmt.Errorf("ledger: filing entity: %w", err)
		}
		return entity, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, pib, registered_name FROM legal_entities WHERE tenant_id = $1 LIMIT 2`, tenantID)
	if err != nil {
		return LegalEntity{}, fmt.Errorf("ledger: filing entity: %w", err)
	}
	defer rows.Close()

	var entities []LegalEntity
	for rows.Next() {
		var entity LegalEntity
		if err := rows.Scan(&entity.ID, &entity.PIB, &entity.Name); err != nil {
			return LegalEntity{}, fmt.Errorf("ledger: filing entity row: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return LegalEntity{}, fmt.Errorf("ledger: filing entity rows: %w", err)
	}
	switch len(entities) {
	case 0:
		return LegalEntity{}, ErrEntityNotFound
	case 1:
		return entities[0], nil
	default:
		return LegalEntity{}, ErrAmbiguousEntity
	}
}

// LatestPostingAfter reports whether any document class received postings in
// the given range after the reference instant. The stale-period scan uses it
// to flag computed-but-unsubmitted periods whose inputs have moved.
func (r *Repository) LatestPostingAfter(ctx context.Context, tenantID uuid.UUID, legalEntityID *int64, start, end time.Time, since time.Time) (bool, error) {
	for _, class := range ScanOrder {
		table := classTables[class]
		query := fmt.Sprintf(`SELECT EXISTS (
SELECT 1 FROM %s
WHERE tenant_id = $1
  AND ($2::bigint IS NULL OR legal_entity_id = $2)
  AND doc_date >= $3 AND doc_date <= $4
  AND created_at > $5)`, table)
		var exists bool
		if err := r.pool.QueryRow(ctx, query, tenantID, legalEntityID, start, end, since).Scan(&exists); err != nil {
			return false, fmt.Errorf("ledger: postings after %s: %w", class, err)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}
