package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists journal entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PostEntry inserts a validated entry with its lines in one transaction and
// returns the journal entry id. Posting the same (source_module, source_id)
// twice returns ErrDuplicate without writing anything.
func (r *Repository) PostEntry(ctx context.Context, entry Entry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return 0, fmt.Errorf("posting: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id int64
	err = tx.QueryRow(ctx, `INSERT INTO journal_entries (source_module, source_id, reference, entry_date, memo, created_at)
VALUES ($1, $2, $3, $4, $5, now()) RETURNING id`,
		entry.SourceModule, entry.SourceID, entry.Reference, entry.Date, entry.Memo).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("posting: insert entry: %w", err)
	}

	for _, line := range entry.Lines {
		if _, err := tx.Exec(ctx, `INSERT INTO journal_lines (journal_id, account, debit, credit, description)
VALUES ($1, $2, $3, $4, $5)`,
			id, line.Account, line.Debit, line.Credit, line.Description); err != nil {
			return 0, fmt.Errorf("posting: insert line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("posting: commit: %w", err)
	}
	return id, nil
}
