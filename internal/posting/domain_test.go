package posting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validEntry() Entry {
	amount := decimal.NewFromInt(2000)
	return Entry{
		SourceModule: "VAT_SETTLEMENT",
		SourceID:     uuid.New(),
		Reference:    "PDV-1",
		Date:         time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Lines: []Line{
			{Account: "4700", Debit: amount},
			{Account: "4790", Credit: amount},
		},
	}
}

func TestEntryValidate(t *testing.T) {
	require.NoError(t, validEntry().Validate())
}

func TestEntryValidateUnbalanced(t *testing.T) {
	entry := validEntry()
	entry.Lines[1].Credit = decimal.NewFromInt(1999)
	require.ErrorIs(t, entry.Validate(), ErrUnbalanced)
}

func TestEntryValidateTooFewLines(t *testing.T) {
	entry := validEntry()
	entry.Lines = entry.Lines[:1]
	require.ErrorIs(t, entry.Validate(), ErrEmptyEntry)
}

func TestEntryValidateMissingSource(t *testing.T) {
	entry := validEntry()
	entry.SourceModule = " "
	require.Error(t, entry.Validate())

	entry = validEntry()
	entry.SourceID = uuid.Nil
	require.Error(t, entry.Validate())
}

func TestEntryValidateLineRules(t *testing.T) {
	entry := validEntry()
	entry.Lines[0].Account = ""
	require.Error(t, entry.Validate())

	entry = validEntry()
	entry.Lines[0].Debit = decimal.NewFromInt(-1)
	entry.Lines[1].Credit = decimal.NewFromInt(-1)
	require.Error(t, entry.Validate())

	// a line cannot carry both sides even when the totals balance
	entry = validEntry()
	entry.Lines[0].Credit = decimal.NewFromInt(500)
	entry.Lines[1].Debit = decimal.NewFromInt(500)
	require.Error(t, entry.Validate())
}
