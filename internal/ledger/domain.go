// Package ledger exposes the read-only query surface over posted source
// documents. The VAT engine consumes it as flat line items; nothing here
// mutates document state.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentClass identifies the source document family a line was read from.
type DocumentClass string

const (
	ClassIssuedInvoice   DocumentClass = "ISSUED_INVOICE"
	ClassSupplierInvoice DocumentClass = "SUPPLIER_INVOICE"
	ClassFiscalTill      DocumentClass = "FISCAL_TILL"
	ClassImportDocument  DocumentClass = "IMPORT_DOCUMENT"
)

// ScanOrder fixes the merge order for multi-class scans so that aggregation
// output is deterministic.
var ScanOrder = []DocumentClass{
	ClassIssuedInvoice,
	ClassSupplierInvoice,
	ClassFiscalTill,
	ClassImportDocument,
}

// Output reports whether the class records supplies made by the entity.
// Import documents are dual-sided and handled separately by the aggregator.
func (c DocumentClass) Output() bool {
	return c == ClassIssuedInvoice || c == ClassFiscalTill
}

// SourceLine is a single taxable line item of a posted document.
type SourceLine struct {
	DocClass      DocumentClass
	DocumentID    int64
	LineNo        int32
	Date          time.Time
	LegalEntityID int64
	Base          decimal.Decimal
	VAT           decimal.Decimal
	Rate          decimal.Decimal // statutory percentage: 20, 10, 8 or 0
	SpecialRegime bool
	Export        bool
}

// LegalEntity carries the filing identity of a registered company.
type LegalEntity struct {
	ID   int64
	PIB  string
	Name string
}
