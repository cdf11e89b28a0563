// Package posting is the journal posting collaborator: it records balanced
// debit/credit entries produced by other modules, such as the VAT period
// settlement.
package posting

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnbalanced indicates debits and credits of an entry do not match.
var ErrUnbalanced = errors.New("posting: entry debits and credits must balance")

// ErrEmptyEntry indicates an entry without lines.
var ErrEmptyEntry = errors.New("posting: entry requires at least two lines")

// ErrDuplicate indicates an entry for the same source was already posted.
var ErrDuplicate = errors.New("posting: entry already posted for source")

// Line is one side of a journal entry.
type Line struct {
	Account     string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// Entry is a balanced journal entry keyed by its originating document.
// (SourceModule, SourceID) is unique, which makes posting idempotent.
type Entry struct {
	SourceModule string
	SourceID     uuid.UUID
	Reference    string
	Date         time.Time
	Memo         string
	Lines        []Line
}

// Validate enforces the balanced-entry invariant.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.SourceModule) == "" || e.SourceID == uuid.Nil {
		return errors.New("posting: source module and id required")
	}
	if len(e.Lines) < 2 {
		return ErrEmptyEntry
	}
	var debit, credit decimal.Decimal
	for _, line := range e.Lines {
		if strings.TrimSpace(line.Account) == "" {
			return errors.New("posting: line account required")
		}
		if line.Debit.Sign() < 0 || line.Credit.Sign() < 0 {
			return errors.New("posting: line amounts must be non-negative")
		}
		if line.Debit.Sign() != 0 && line.Credit.Sign() != 0 {
			return errors.New("posting: line cannot carry both debit and credit")
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	return nil
}
