// Package popdv classifies posted document lines into the statutory POPDV
// working-form buckets and rolls them into the form totals.
package popdv

import (
	"github.com/shopspring/decimal"
)

// Direction of an aggregated bucket.
type Direction string

const (
	DirectionOutput Direction = "OUTPUT"
	DirectionInput  Direction = "INPUT"
)

// POPDV working-form field codes. The set covers the buckets the ledger can
// produce; manual sections (9, 9a) enter as adjustments, not as lines.
const (
	FieldExportExempt     = "1.1"   // supplies exempt with the right to deduct
	FieldDomesticExempt   = "2.1"   // supplies exempt without the right to deduct
	FieldStandardSupplies = "3.2"   // taxed supplies at 20% or 10%
	FieldSelfAssessed     = "3a.1"  // reverse-charge output, self-assessed
	FieldSpecialRegime    = "4.1.1" // special-regime supplies (art. 35/36 margin schemes)
	FieldInputDomestic    = "8a.2"  // input VAT on domestic purchases
	FieldInputImport      = "8b.1"  // reverse-charge deduction side
	FieldInputFarm        = "8v.1"  // flat-rate compensation paid to farmers
	FieldInputExempt      = "8g.1"  // purchases without charged VAT
)

// statutory rates as whole percentages
var (
	rateStandard = decimal.NewFromInt(20)
	rateReduced  = decimal.NewFromInt(10)
	rateFarm     = decimal.NewFromInt(8)
)

// AggregatedLine is one POPDV bucket: the running sums of every source line
// classified into the same field code. It is fully derived and rebuilt on
// every calculation.
type AggregatedLine struct {
	PopdvField string          `json:"popdv_field"`
	Direction  Direction       `json:"direction"`
	TotalBase  decimal.Decimal `json:"total_base"`
	TotalVAT   decimal.Decimal `json:"total_vat"`
	VATOS      decimal.Decimal `json:"vat_os"` // 20%-rate subtotal
	VATPS      decimal.Decimal `json:"vat_ps"` // 10%-rate subtotal
	EntryCount int64           `json:"entry_count"`
}

// DominantRate reports which rate carries most of the bucket's VAT. It is
// informational only; VATOS and VATPS stay exact when a bucket mixes rates.
func (l AggregatedLine) DominantRate() string {
	switch {
	case l.VATOS.IsZero() && l.VATPS.IsZero():
		return ""
	case l.VATOS.GreaterThanOrEqual(l.VATPS):
		return "OS"
	default:
		return "PS"
	}
}

// Aggregation groups the classified buckets by side. Reverse-charge buckets
// are kept apart because they enter both the output and the deduction totals.
type Aggregation struct {
	OutputLines        []AggregatedLine `json:"output_lines"`
	ReverseChargeLines []AggregatedLine `json:"reverse_charge_lines"`
	InputLines         []AggregatedLine `json:"input_lines"`
}
