package periods

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type createPeriodRequest struct {
	LegalEntityID *int64 `json:"legal_entity_id" validate:"omitempty,gt=0"`
	StartDate     string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (r createPeriodRequest) dates() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date", ErrValidation)
	}
	end, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date", ErrValidation)
	}
	return start, end, nil
}

type calculateRequest struct {
	NonDeductibleVAT string `json:"non_deductible_vat" validate:"omitempty,numeric"`
	NetCorrections   string `json:"net_corrections" validate:"omitempty,numeric"`
}

func (r calculateRequest) amounts() (decimal.Decimal, decimal.Decimal, error) {
	nonDeductible := decimal.Zero
	corrections := decimal.Zero
	var err error
	if r.NonDeductibleVAT != "" {
		if nonDeductible, err = decimal.NewFromString(r.NonDeductibleVAT); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: non_deductible_vat", ErrValidation)
		}
		if nonDeductible.Sign() < 0 {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: non_deductible_vat must be non-negative", ErrValidation)
		}
	}
	if r.NetCorrections != "" {
		if corrections, err = decimal.NewFromString(r.NetCorrections); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: net_corrections", ErrValidation)
		}
	}
	return nonDeductible, corrections, nil
}

type periodResponse struct {
	ID            int64      `json:"id"`
	LegalEntityID *int64     `json:"legal_entity_id,omitempty"`
	StartDate     string     `json:"start_date"`
	EndDate       string     `json:"end_date"`
	Status        Status     `json:"status"`
	Locked        bool       `json:"is_locked"`
	OutputVAT     string     `json:"output_vat"`
	InputVAT      string     `json:"input_vat"`
	VATLiability  string     `json:"vat_liability"`
	ComputedAt    *time.Time `json:"computed_at,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

func toPeriodResponse(p TaxPeriod) periodResponse {
	return periodResponse{
		ID:            p.ID,
		LegalEntityID: p.LegalEntityID,
		StartDate:     p.StartDate.Format(dateLayout),
		EndDate:       p.EndDate.Format(dateLayout),
		Status:        p.Status,
		Locked:        p.Locked,
		OutputVAT:     p.OutputVAT.StringFixed(2),
		InputVAT:      p.InputVAT.StringFixed(2),
		VATLiability:  p.VATLiability.StringFixed(2),
		ComputedAt:    p.ComputedAt,
		SubmittedAt:   p.SubmittedAt,
	}
}

type settleResponse struct {
	JournalEntryID int64         `json:"journal_entry_id,omitempty"`
	AlreadyPosted  bool          `json:"already_posted"`
	PaymentOrder   *PaymentOrder `json:"payment_order,omitempty"`
}
