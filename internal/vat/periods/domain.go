// Package periods owns the tax-period state machine and orchestrates VAT
// computation, filing and settlement. It is the only writer of period state.
package periods

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/morava-erp/morava-erp/internal/vat/popdv"
	"github.com/morava-erp/morava-erp/internal/vat/pppdv"
)

// Status enumerates the tax period lifecycle.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusCalculated Status = "CALCULATED"
	StatusSubmitted  Status = "SUBMITTED"
	StatusClosed     Status = "CLOSED"
)

// filed reports whether a period in this status counts as lodged with the
// tax authority, which makes its credit eligible for carry-forward.
func (s Status) filed() bool {
	return s == StatusSubmitted || s == StatusClosed
}

// TaxPeriod is one VAT accounting window of a legal entity. Never deleted
// once submitted. Locked is orthogonal to Status and blocks recomputation
// and submission while set.
type TaxPeriod struct {
	ID            int64
	TenantID      uuid.UUID
	LegalEntityID *int64 // nil means all entities of a single-entity tenant
	ReferenceID   uuid.UUID
	StartDate     time.Time
	EndDate       time.Time
	Status        Status
	Locked        bool
	OutputVAT     decimal.Decimal
	InputVAT      decimal.Decimal
	VATLiability  decimal.Decimal // signed; negative = credit carried forward
	ComputedAt    *time.Time
	SubmittedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Snapshot is the persisted result of the latest computation, keyed by
// (tenant, period_start, period_end). Repeat calculations upsert it.
type Snapshot struct {
	TenantID      uuid.UUID       `json:"tenant_id"`
	LegalEntityID *int64          `json:"legal_entity_id"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
	Popdv         popdv.Result    `json:"popdv_data"`
	PpPdv         pppdv.Form      `json:"pppdv_data"`
	OutputVAT     decimal.Decimal `json:"output_vat"`
	InputVAT      decimal.Decimal `json:"input_vat"`
	NetVAT        decimal.Decimal `json:"net_vat"`
}

// Section tags for stored aggregated lines.
const (
	SectionOutput        = "OUTPUT"
	SectionReverseCharge = "REVERSE_CHARGE"
	SectionInput         = "INPUT"
)

// StoredLine is an aggregated line with its section tag, as persisted for a
// period. The whole set is replaced on every calculation.
type StoredLine struct {
	Section string
	popdv.AggregatedLine
}

// Computation bundles everything one calculate run persists atomically.
type Computation struct {
	Period   TaxPeriod
	Lines    []StoredLine
	Snapshot Snapshot
}

// CreatePeriodInput captures validation rules for new periods.
type CreatePeriodInput struct {
	TenantID      uuid.UUID
	LegalEntityID *int64
	StartDate     time.Time
	EndDate       time.Time
}

// Validate ensures the input is coherent before touching storage.
func (in CreatePeriodInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant required", ErrValidation)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end date required", ErrValidation)
	}
	if in.StartDate.After(in.EndDate) {
		return fmt.Errorf("%w: start date cannot be after end date", ErrValidation)
	}
	return nil
}

// CalculateInput parameterizes one computation run. Adjustments come from the
// manual-corrections context and default to zero.
type CalculateInput struct {
	TenantID    uuid.UUID
	PeriodID    int64
	Adjustments popdv.Adjustments
}

// SettleResult reports what settlement produced.
type SettleResult struct {
	JournalEntryID int64
	AlreadyPosted  bool
	PaymentOrder   *PaymentOrder
}

// PaymentOrder is the structured reference returned for a payable liability.
type PaymentOrder struct {
	Amount    decimal.Decimal `json:"amount"`
	Model     string          `json:"model"`
	Reference string          `json:"reference"`
}

var (
	// ErrValidation rejects malformed input before any computation.
	ErrValidation = errors.New("periods: validation failed")
	// ErrPeriodNotFound indicates the period does not exist for the tenant.
	ErrPeriodNotFound = errors.New("periods: period not found")
	// ErrPeriodOverlap indicates the requested range conflicts with an existing period.
	ErrPeriodOverlap = errors.New("periods: date range overlaps an existing period")
	// ErrLockedPeriod rejects mutation of a locked period.
	ErrLockedPeriod = errors.New("periods: period is locked")
	// ErrInvalidTransition rejects a state change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("periods: invalid state transition")
	// ErrNotComputed indicates a period has no stored computation yet.
	ErrNotComputed = errors.New("periods: period has no computed result")
	// ErrExternalService marks collaborator failures; period state is
	// guaranteed unchanged when it is returned.
	ErrExternalService = errors.New("periods: external service failure")
)

// ExternalError wraps a collaborator failure with its origin.
type ExternalError struct {
	Service string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("periods: %s: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Is matches ErrExternalService so callers can branch without knowing the
// collaborator.
func (e *ExternalError) Is(target error) bool { return target == ErrExternalService }
