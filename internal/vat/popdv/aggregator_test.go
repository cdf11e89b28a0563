package popdv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morava-erp/morava-erp/internal/ledger"
)

type fakeSource struct {
	lines map[ledger.DocumentClass][]ledger.SourceLine
	err   error
}

func (f *fakeSource) ScanLines(ctx context.Context, tenantID uuid.UUID, class ledger.DocumentClass, legalEntityID *int64, start, end time.Time, fn func(ledger.SourceLine) error) error {
	if f.err != nil {
		return f.err
	}
	for _, line := range f.lines[class] {
		if err := fn(line); err != nil {
			return err
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sourceLine(class ledger.DocumentClass, base, vat string, rate int64) ledger.SourceLine {
	return ledger.SourceLine{
		DocClass:   class,
		DocumentID: 1,
		LineNo:     1,
		Base:       dec(base),
		VAT:        dec(vat),
		Rate:       decimal.NewFromInt(rate),
	}
}

var (
	testTenant = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	testStart  = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	testEnd    = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
)

func aggregate(t *testing.T, src *fakeSource) Aggregation {
	t.Helper()
	agg, err := NewAggregator(src).Aggregate(context.Background(), testTenant, nil, testStart, testEnd)
	require.NoError(t, err)
	return agg
}

func TestAggregateStandardSupply(t *testing.T) {
	src := &fakeSource{lines: map[ledger.DocumentClass][]ledger.SourceLine{
		ledger.ClassIssuedInvoice: {
			sourceLine(ledger.ClassIssuedInvoice, "10000", "2000", 20),
			sourceLine(ledger.ClassIssuedInvoice, "3000", "300", 10),
		},
	}}
	agg := aggregate(t, src)

	require.Len(t, agg.OutputLines, 1)
	require.Empty(t, agg.ReverseChargeLines)
	require.Empty(t, agg.InputLines)

	line := agg.OutputLines[0]
	assert.Equal(t, FieldStandardSupplies, line.PopdvField)
	assert.Equal(t, DirectionOutput, line.Direction)
	assert.True(t, line.TotalBase.Equal(dec("13000")))
	assert.True(t, line.TotalVAT.Equal(dec("2300")))
	assert.True(t, line.VATOS.Equal(dec("2000")), "standard-rate subtotal")
	assert.True(t, line.VATPS.Equal(dec("300")), "reduced-rate subtotal")
	assert.Equal(t, int64(2), line.EntryCount)
}

func TestAggregateExemptBuckets(t *testing.T) {
	export := sourceLine(ledger.ClassIssuedInvoice, "5000", "0", 0)
	export.Export = true
	domestic := sourceLine(ledger.ClassIssuedInvoice, "2000", "0", 0)
	domestic.DocumentID = 2
	special := sourceLine(ledger.ClassFiscalTill, "900", "0", 0)
	special.SpecialRegime = true

	src := &fakeSource{lines: map[ledger.DocumentClass][]ledger.SourceLine{
		ledger.ClassIssuedInvoice: {export, domestic},
		ledger.ClassFiscalTill:    {special},
	}}
	agg := aggregate(t, src)

	require.Len(t, agg.OutputLines, 3)
	fields := map[string]AggregatedLine{}
	for _, line := range agg.OutputLines {
		fields[line.PopdvField] = line
	}
	assert.True(t, fields[FieldExportExempt].TotalBase.Equal(dec("5000")))
	assert.True(t, fields[FieldDomesticExempt].TotalBase.Equal(dec("2000")))
	assert.True(t, fields[FieldSpecialRegime].TotalBase.Equal(dec("900")))
}

func TestAggregateImportIsReverseCharge(t *testing.T) {
	src := &fakeSource{lines: map[ledger.DocumentClass][]ledger.SourceLine{
		ledger.ClassImportDocument: {
			sourceLine(ledger.ClassImportDocument, "4000", "800", 20),
		},
	}}
	agg := aggregate(t, src)

	require.Empty(t, agg.OutputLines)
	require.Len(t, agg.ReverseChargeLines, 1)
	line := agg.ReverseChargeLines[0]
	assert.Equal(t, FieldSelfAssessed, line.PopdvField)
	assert.Equal(t, DirectionOutput, line.Direction)
	assert.True(t, line.TotalVAT.Equal(dec("800")))
}

func TestAggregateInputBuckets(t *testing.T) {
	domestic := sourceLine(ledger.ClassSupplierInvoice, "5000", "1000", 20)
	exempt := sourceLine(ledger.ClassSupplierInvoice, "700", "0", 0)
	exempt.DocumentID = 2
	farm := sourceLine(ledger.ClassSupplierInvoice, "1000", "80", 8)
	farm.DocumentID = 3
	farm.SpecialRegime = true

	src := &fakeSource{lines: map[ledger.DocumentClass][]ledger.SourceLine{
		ledger.ClassSupplierInvoice: {domestic, exempt, farm},
	}}
	agg := aggregate(t, src)

	require.Len(t, agg.InputLines, 3)
	fields := map[string]AggregatedLine{}
	for _, line := range agg.InputLines {
		fields[line.PopdvField] = line
		assert.Equal(t, DirectionInput, line.Direction)
	}
	assert.True(t, fields[FieldInputDomestic].TotalVAT.Equal(dec("1000")))
	assert.True(t, fields[FieldInputExempt].TotalBase.Equal(dec("700")))
	assert.True(t, fields[FieldInputFarm].TotalVAT.Equal(dec("80")), "flat-rate compensation")
}

func TestAggregateUnknownRateFails(t *testing.T) {
	cases := map[string]ledger.SourceLine{
		"output rate 5":      sourceLine(ledger.ClassIssuedInvoice, "100", "5", 5),
		"input rate 8 plain": sourceLine(ledger.ClassSupplierInvoice, "100", "8", 8),
		"import rate 0":      sourceLine(ledger.ClassImportDocument, "100", "0", 0),
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{lines: map[ledger.DocumentClass][]ledger.SourceLine{
				line.DocClass: {line},
			}}
			_, err := NewAggregator(src).Aggregate(context.Background(), testTenant, nil, testStart, testEnd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownClassification))
		})
	}
}

func TestAggregateDeterministic(t *testing.T) {
	src := &fakeSource{lines: map[ledger.DocumentClass][]ledger.SourceLine{
		ledger.ClassIssuedInvoice: {
			sourceLine(ledger.ClassIssuedInvoice, "10000", "2000", 20),
			sourceLine(ledger.ClassIssuedInvoice, "3000", "300", 10),
		},
		ledger.ClassSupplierInvoice: {
			sourceLine(ledger.ClassSupplierInvoice, "5000", "1000", 20),
		},
		ledger.ClassFiscalTill: {
			sourceLine(ledger.ClassFiscalTill, "1200", "240", 20),
		},
		ledger.ClassImportDocument: {
			sourceLine(ledger.ClassImportDocument, "4000", "800", 20),
		},
	}}

	first := aggregate(t, src)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, aggregate(t, src))
	}
}

func TestAggregateMergesTillAndInvoiceSupplies(t *testing.T) {
	src := &fakeSource{lines: map[ledger.DocumentClass][]ledger.SourceLine{
		ledger.ClassIssuedInvoice: {sourceLine(ledger.ClassIssuedInvoice, "1000", "200", 20)},
		ledger.ClassFiscalTill:    {sourceLine(ledger.ClassFiscalTill, "500", "100", 20)},
	}}
	agg := aggregate(t, src)

	require.Len(t, agg.OutputLines, 1)
	line := agg.OutputLines[0]
	assert.Equal(t, FieldStandardSupplies, line.PopdvField)
	assert.True(t, line.TotalBase.Equal(dec("1500")))
	assert.True(t, line.TotalVAT.Equal(dec("300")))
	assert.Equal(t, int64(2), line.EntryCount)
}
