package popdv

import (
	"github.com/shopspring/decimal"
)

// Adjustments carries manual corrections maintained outside the ledger scope
// (POPDV sections 9 and 9a). Defaults are zero.
type Adjustments struct {
	NonDeductibleVAT decimal.Decimal `json:"non_deductible_vat"` // section 9
	NetCorrections   decimal.Decimal `json:"net_corrections"`    // signed, increases the deduction when positive
}

// Result is the POPDV working form: the classified buckets plus the derived
// section totals. All derived scalars are rounded half-up to 2 places once,
// at the end of each derivation.
type Result struct {
	OutputLines        []AggregatedLine `json:"output_lines"`
	ReverseChargeLines []AggregatedLine `json:"reverse_charge_lines"`
	InputLines         []AggregatedLine `json:"input_lines"`

	Adjustments Adjustments `json:"adjustments"`

	ExportBase   decimal.Decimal `json:"export_base"`   // exempt with the right to deduct
	ExemptBase   decimal.Decimal `json:"exempt_base"`   // exempt without the right to deduct
	StandardBase decimal.Decimal `json:"standard_base"` // standard-regime taxed supplies
	SpecialBase  decimal.Decimal `json:"special_base"`  // special-regime supplies
	TotalBase    decimal.Decimal `json:"total_base"`    // StandardBase + SpecialBase

	ImportBase       decimal.Decimal `json:"import_base"`
	ImportVAT        decimal.Decimal `json:"import_vat"`
	FarmBase         decimal.Decimal `json:"farm_base"`
	FarmCompensation decimal.Decimal `json:"farm_compensation"`

	TotalOutputVAT     decimal.Decimal `json:"total_output_vat"`     // section 5, incl. reverse charge
	GrossInputVAT      decimal.Decimal `json:"gross_input_vat"`      // incl. reverse-charge deduction side
	DeductibleInputVAT decimal.Decimal `json:"deductible_input_vat"` // section 8dj after adjustments
	NetVAT             decimal.Decimal `json:"net_vat"`              // section 10, signed
}

// Build rolls an aggregation into the POPDV totals. Pure function; reverse
// charge VAT is intentionally counted in both TotalOutputVAT and
// GrossInputVAT, the self-assessment and the simultaneous right to deduct.
func Build(agg Aggregation, adj Adjustments) Result {
	res := Result{
		OutputLines:        agg.OutputLines,
		ReverseChargeLines: agg.ReverseChargeLines,
		InputLines:         agg.InputLines,
		Adjustments:        adj,
	}

	for _, line := range agg.OutputLines {
		switch line.PopdvField {
		case FieldExportExempt:
			res.ExportBase = res.ExportBase.Add(line.TotalBase)
		case FieldDomesticExempt:
			res.ExemptBase = res.ExemptBase.Add(line.TotalBase)
		case FieldStandardSupplies:
			res.StandardBase = res.StandardBase.Add(line.TotalBase)
		case FieldSpecialRegime:
			res.SpecialBase = res.SpecialBase.Add(line.TotalBase)
		}
		res.TotalOutputVAT = res.TotalOutputVAT.Add(line.TotalVAT)
	}

	for _, line := range agg.ReverseChargeLines {
		res.ImportBase = res.ImportBase.Add(line.TotalBase)
		res.ImportVAT = res.ImportVAT.Add(line.TotalVAT)
		res.TotalOutputVAT = res.TotalOutputVAT.Add(line.TotalVAT)
		res.GrossInputVAT = res.GrossInputVAT.Add(line.TotalVAT)
	}

	for _, line := range agg.InputLines {
		if line.PopdvField == FieldInputFarm {
			res.FarmBase = res.FarmBase.Add(line.TotalBase)
			res.FarmCompensation = res.FarmCompensation.Add(line.TotalVAT)
		}
		res.GrossInputVAT = res.GrossInputVAT.Add(line.TotalVAT)
	}

	res.ExportBase = round2(res.ExportBase)
	res.ExemptBase = round2(res.ExemptBase)
	res.StandardBase = round2(res.StandardBase)
	res.SpecialBase = round2(res.SpecialBase)
	res.TotalBase = round2(res.StandardBase.Add(res.SpecialBase))
	res.ImportBase = round2(res.ImportBase)
	res.ImportVAT = round2(res.ImportVAT)
	res.FarmBase = round2(res.FarmBase)
	res.FarmCompensation = round2(res.FarmCompensation)
	res.TotalOutputVAT = round2(res.TotalOutputVAT)
	res.GrossInputVAT = round2(res.GrossInputVAT)
	res.DeductibleInputVAT = round2(res.GrossInputVAT.Sub(adj.NonDeductibleVAT).Add(adj.NetCorrections))
	res.NetVAT = round2(res.TotalOutputVAT.Sub(res.DeductibleInputVAT))

	return res
}

// round2 rounds half away from zero to 2 fraction digits.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
