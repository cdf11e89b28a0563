// Package pppdv derives the PP-PDV periodic tax declaration from POPDV
// totals and renders it into the statutory XML envelope.
package pppdv

import (
	"github.com/shopspring/decimal"

	"github.com/morava-erp/morava-erp/internal/vat/popdv"
)

// Form is the PP-PDV declaration. Every field is a non-negative 2dp decimal
// except Field110, which is signed. Exactly one of Field111 and Field112 is
// non-zero for any computed form.
type Form struct {
	Field001 decimal.Decimal `json:"field_001"` // turnover exempt with the right to deduct
	Field002 decimal.Decimal `json:"field_002"` // turnover exempt without the right to deduct
	Field003 decimal.Decimal `json:"field_003"` // standard-regime taxed turnover
	Field103 decimal.Decimal `json:"field_103"` // special-regime turnover
	Field005 decimal.Decimal `json:"field_005"` // total taxed turnover
	Field006 decimal.Decimal `json:"field_006"` // import base
	Field106 decimal.Decimal `json:"field_106"` // import VAT, self-assessed
	Field007 decimal.Decimal `json:"field_007"` // purchases from flat-rate farmers
	Field107 decimal.Decimal `json:"field_107"` // flat-rate compensation paid
	Field105 decimal.Decimal `json:"field_105"` // total output VAT
	Field008 decimal.Decimal `json:"field_008"` // gross input VAT before adjustment
	Field108 decimal.Decimal `json:"field_108"` // non-deductible input VAT
	Field009 decimal.Decimal `json:"field_009"` // net correction adjustments
	Field109 decimal.Decimal `json:"field_109"` // deductible input VAT
	Field110 decimal.Decimal `json:"field_110"` // net VAT for the period, signed
	Field111 decimal.Decimal `json:"field_111"` // liability to pay
	Field112 decimal.Decimal `json:"field_112"` // credit carried forward
}

// Map derives the declaration from the POPDV totals and the credit carried
// forward from the immediately preceding filed period of the same legal
// entity (zero when none exists). priorCredit must be non-negative.
//
// Field110 stays the raw section-10 net; the carried credit is settled in the
// 111/112 split, so an unused prior credit survives a zero-activity period.
func Map(res popdv.Result, priorCredit decimal.Decimal) Form {
	f := Form{
		Field001: res.ExportBase,
		Field002: res.ExemptBase,
		Field003: res.StandardBase,
		Field103: res.SpecialBase,
		Field005: res.TotalBase,
		Field006: res.ImportBase,
		Field106: res.ImportVAT,
		Field007: res.FarmBase,
		Field107: res.FarmCompensation,
		Field105: res.TotalOutputVAT,
		Field008: res.GrossInputVAT,
		Field108: res.Adjustments.NonDeductibleVAT.Round(2),
		Field009: res.Adjustments.NetCorrections.Round(2),
		Field109: res.DeductibleInputVAT,
		Field110: res.NetVAT,
	}

	settled := f.Field110.Sub(priorCredit)
	if settled.Sign() >= 0 {
		f.Field111 = settled
		f.Field112 = decimal.Zero
	} else {
		f.Field111 = decimal.Zero
		f.Field112 = settled.Neg()
	}
	return f
}

// Liability is the signed net position after credit settlement: positive
// means VAT payable, negative means credit carried forward.
func (f Form) Liability() decimal.Decimal {
	return f.Field111.Sub(f.Field112)
}
