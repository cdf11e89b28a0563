package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/morava-erp/morava-erp/internal/ledger"
	"github.com/morava-erp/morava-erp/internal/payment"
	"github.com/morava-erp/morava-erp/internal/posting"
	"github.com/morava-erp/morava-erp/internal/vat/popdv"
	"github.com/morava-erp/morava-erp/internal/vat/pppdv"
)

// settlement accounts, Serbian chart of accounts
const (
	accountOutputVAT     = "4700" // obracunati PDV
	accountInputVAT      = "2700" // prethodni PDV
	accountVATPayable    = "4790" // obaveza za PDV po obracunu
	accountVATReceivable = "2790" // potrazivanje za vise placeni PDV
)

const settlementSourceModule = "VAT_SETTLEMENT"

// Repository persists periods, aggregated lines and snapshots. Every
// multi-step write happens inside one repository-owned transaction.
type Repository interface {
	InsertPeriod(ctx context.Context, period TaxPeriod) (TaxPeriod, error)
	RangeConflict(ctx context.Context, tenantID uuid.UUID, legalEntityID *int64, start, end time.Time) (bool, error)
	GetPeriod(ctx context.Context, tenantID uuid.UUID, id int64) (TaxPeriod, error)
	ListPeriods(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]TaxPeriod, error)
	LatestFiledBefore(ctx context.Context, tenantID uuid.UUID, legalEntityID *int64, before time.Time) (*Snapshot, error)
	ReplaceComputation(ctx context.Context, comp Computation) error
	GetSnapshot(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (Snapshot, error)
	AggregatedLines(ctx context.Context, periodID int64) ([]StoredLine, error)
	SetStatus(ctx context.Context, id int64, from, to Status, at time.Time) error
	SetLocked(ctx context.Context, id int64, locked bool) error
}

// Aggregator produces the classified POPDV buckets for a date range.
type Aggregator interface {
	Aggregate(ctx context.Context, tenantID uuid.UUID, legalEntityID *int64, start, end time.Time) (popdv.Aggregation, error)
}

// Filer lodges a rendered declaration with the tax authority.
type Filer interface {
	SubmitDeclaration(ctx context.Context, pib string, year, month int, declaration []byte) error
}

// Poster records the settlement journal entry.
type Poster interface {
	PostEntry(ctx context.Context, entry posting.Entry) (int64, error)
}

// EntityDirectory resolves the legal entity a declaration is filed for.
type EntityDirectory interface {
	FilingEntity(ctx context.Context, tenantID uuid.UUID, id *int64) (ledger.LegalEntity, error)
}

// Publisher emits period lifecycle events for read-side caches.
type Publisher interface {
	PeriodRecalculated(ctx context.Context, ev Event) error
	PeriodSubmitted(ctx context.Context, ev Event) error
}

// Service orchestrates the period lifecycle. All status mutations flow
// through here.
type Service struct {
	repo     Repository
	agg      Aggregator
	filer    Filer
	poster   Poster
	entities EntityDirectory
	events   Publisher
	now      func() time.Time
	logger   *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo Repository, agg Aggregator, filer Filer, poster Poster, entities EntityDirectory, events Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		repo:     repo,
		agg:      agg,
		filer:    filer,
		poster:   poster,
		entities: entities,
		events:   events,
		now:      time.Now,
		logger:   logger,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePeriod opens a new period after validating the range does not overlap
// an existing one for the same legal entity.
func (s *Service) CreatePeriod(ctx context.Context, in CreatePeriodInput) (TaxPeriod, error) {
	if err := in.Validate(); err != nil {
		return TaxPeriod{}, err
	}
	conflict, err := s.repo.RangeConflict(ctx, in.TenantID, in.LegalEntityID, in.StartDate, in.EndDate)
	if err != nil {
		return TaxPeriod{}, err
	}
	if conflict {
		return TaxPeriod{}, ErrPeriodOverlap
	}
	now := s.now()
	return s.repo.InsertPeriod(ctx, TaxPeriod{
		TenantID:      in.TenantID,
		LegalEntityID: in.LegalEntityID,
		ReferenceID:   uuid.New(),
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Status:        StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// GetPeriod returns one period of the tenant.
func (s *Service) GetPeriod(ctx context.Context, tenantID uuid.UUID, id int64) (TaxPeriod, error) {
	return s.repo.GetPeriod(ctx, tenantID, id)
}

// ListPeriods returns paginated periods of the tenant.
func (s *Service) ListPeriods(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]TaxPeriod, error) {
	return s.repo.ListPeriods(ctx, tenantID, limit, offset)
}

// GetSnapshot returns the latest computed result for a period.
func (s *Service) GetSnapshot(ctx context.Context, tenantID uuid.UUID, id int64) (Snapshot, error) {
	period, err := s.repo.GetPeriod(ctx, tenantID, id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.repo.GetSnapshot(ctx, tenantID, period.StartDate, period.EndDate)
}

// Calculate runs aggregation, POPDV rollup and PP-PDV mapping for the period
// and atomically replaces the stored computation. Idempotent over unchanged
// ledger state; a repeat call fully supersedes the prior result.
func (s *Service) Calculate(ctx context.Context, in CalculateInput) (Snapshot, error) {
	period, err := s.repo.GetPeriod(ctx, in.TenantID, in.PeriodID)
	if err != nil {
		return Snapshot{}, err
	}
	if period.Locked {
		return Snapshot{}, ErrLockedPeriod
	}
	if period.Status != StatusOpen && period.Status != StatusCalculated {
		return Snapshot{}, fmt.Errorf("%w: calculate from %s", ErrInvalidTransition, period.Status)
	}

	priorCredit, err := s.carriedCredit(ctx, period)
	if err != nil {
		return Snapshot{}, err
	}

	agg, err := s.agg.Aggregate(ctx, period.TenantID, period.LegalEntityID, period.StartDate, period.EndDate)
	if err != nil {
		return Snapshot{}, err
	}
	result := popdv.Build(agg, in.Adjustments)
	form := pppdv.Map(result, priorCredit)

	now := s.now()
	period.Status = StatusCalculated
	period.OutputVAT = result.TotalOutputVAT
	period.InputVAT = result.DeductibleInputVAT
	period.VATLiability = form.Liability()
	period.ComputedAt = &now
	period.UpdatedAt = now

	snapshot := Snapshot{
		TenantID:      period.TenantID,
		LegalEntityID: period.LegalEntityID,
		PeriodStart:   period.StartDate,
		PeriodEnd:     period.EndDate,
		Popdv:         result,
		PpPdv:         form,
		OutputVAT:     result.TotalOutputVAT,
		InputVAT:      result.DeductibleInputVAT,
		NetVAT:        result.NetVAT,
	}

	comp := Computation{Period: period, Lines: storedLines(result), Snapshot: snapshot}
	if err := s.repo.ReplaceComputation(ctx, comp); err != nil {
		return Snapshot{}, err
	}

	s.publish(ctx, s.events.PeriodRecalculated, period, "period recalculated")
	return snapshot, nil
}

// DeclarationXML renders the stored PP-PDV form into the statutory envelope.
func (s *Service) DeclarationXML(ctx context.Context, tenantID uuid.UUID, id int64) (string, error) {
	period, err := s.repo.GetPeriod(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	snapshot, err := s.repo.GetSnapshot(ctx, tenantID, period.StartDate, period.EndDate)
	if err != nil {
		return "", err
	}
	entity, err := s.entities.FilingEntity(ctx, tenantID, period.LegalEntityID)
	if err != nil {
		return "", err
	}
	return pppdv.Serialize(snapshot.PpPdv, declarationHeader(entity, period))
}

// Submit lodges the declaration with the filing collaborator. The transition
// to SUBMITTED commits only after the external call succeeds; on failure the
// period stays CALCULATED and the cause is surfaced.
func (s *Service) Submit(ctx context.Context, tenantID uuid.UUID, id int64) (TaxPeriod, error) {
	period, err := s.repo.GetPeriod(ctx, tenantID, id)
	if err != nil {
		return TaxPeriod{}, err
	}
	if period.Locked {
		return TaxPeriod{}, ErrLockedPeriod
	}
	if period.Status != StatusCalculated {
		return TaxPeriod{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, period.Status)
	}

	snapshot, err := s.repo.GetSnapshot(ctx, tenantID, period.StartDate, period.EndDate)
	if err != nil {
		return TaxPeriod{}, err
	}
	entity, err := s.entities.FilingEntity(ctx, tenantID, period.LegalEntityID)
	if err != nil {
		return TaxPeriod{}, err
	}
	header := declarationHeader(entity, period)
	declaration, err := pppdv.Serialize(snapshot.PpPdv, header)
	if err != nil {
		return TaxPeriod{}, err
	}

	if err := s.filer.SubmitDeclaration(ctx, header.PIB, header.Year, header.Month, []byte(declaration)); err != nil {
		return TaxPeriod{}, &ExternalError{Service: "filing", Err: err}
	}

	now := s.now()
	if err := s.repo.SetStatus(ctx, period.ID, StatusCalculated, StatusSubmitted, now); err != nil {
		return TaxPeriod{}, err
	}
	period.Status = StatusSubmitted
	period.SubmittedAt = &now
	period.UpdatedAt = now

	s.publish(ctx, s.events.PeriodSubmitted, period, "period submitted")
	return period, nil
}

// Settle posts the settlement journal entry for a submitted period and, for a
// payable liability, generates the structured payment order. Idempotent by
// period: a repeat call posts nothing and reports AlreadyPosted.
func (s *Service) Settle(ctx context.Context, tenantID uuid.UUID, id int64) (SettleResult, error) {
	period, err := s.repo.GetPeriod(ctx, tenantID, id)
	if err != nil {
		return SettleResult{}, err
	}
	if period.Status != StatusSubmitted {
		return SettleResult{}, fmt.Errorf("%w: settle from %s", ErrInvalidTransition, period.Status)
	}
	if period.VATLiability.IsZero() {
		return SettleResult{}, nil
	}

	entry := settlementEntry(period)
	var result SettleResult
	entryID, err := s.poster.PostEntry(ctx, entry)
	switch {
	case errors.Is(err, posting.ErrDuplicate):
		result.AlreadyPosted = true
	case err != nil:
		return SettleResult{}, &ExternalError{Service: "posting", Err: err}
	default:
		result.JournalEntryID = entryID
	}

	if period.VATLiability.Sign() > 0 {
		entity, err := s.entities.FilingEntity(ctx, tenantID, period.LegalEntityID)
		if err != nil {
			return SettleResult{}, err
		}
		order, err := payment.NewOrder(payment.OrderInput{
			PIB:    entity.PIB,
			Year:   period.EndDate.Year(),
			Month:  int(period.EndDate.Month()),
			Amount: period.VATLiability,
		})
		if err != nil {
			return SettleResult{}, &ExternalError{Service: "payment", Err: err}
		}
		result.PaymentOrder = &PaymentOrder{Amount: order.Amount, Model: order.Model, Reference: order.Reference}
	}
	return result, nil
}

// SetLocked toggles the lock flag. A period can be locked once it left OPEN.
func (s *Service) SetLocked(ctx context.Context, tenantID uuid.UUID, id int64, locked bool) (TaxPeriod, error) {
	period, err := s.repo.GetPeriod(ctx, tenantID, id)
	if err != nil {
		return TaxPeriod{}, err
	}
	if period.Status == StatusOpen {
		return TaxPeriod{}, fmt.Errorf("%w: lock requires a calculated period", ErrInvalidTransition)
	}
	if err := s.repo.SetLocked(ctx, period.ID, locked); err != nil {
		return TaxPeriod{}, err
	}
	period.Locked = locked
	return period, nil
}

// Close marks the filing cycle complete. Terminal: no further transitions or
// recomputation, regardless of the lock flag.
func (s *Service) Close(ctx context.Context, tenantID uuid.UUID, id int64) (TaxPeriod, error) {
	period, err := s.repo.GetPeriod(ctx, tenantID, id)
	if err != nil {
		return TaxPeriod{}, err
	}
	if period.Status != StatusSubmitted {
		return TaxPeriod{}, fmt.Errorf("%w: close from %s", ErrInvalidTransition, period.Status)
	}
	now := s.now()
	if err := s.repo.SetStatus(ctx, period.ID, StatusSubmitted, StatusClosed, now); err != nil {
		return TaxPeriod{}, err
	}
	period.Status = StatusClosed
	period.UpdatedAt = now
	return period, nil
}

// carriedCredit resolves the unused credit of the most recent filed period
// ending immediately before this one, for the same legal entity. Zero when no
// such period exists.
func (s *Service) carriedCredit(ctx context.Context, period TaxPeriod) (decimal.Decimal, error) {
	prior, err := s.repo.LatestFiledBefore(ctx, period.TenantID, period.LegalEntityID, period.StartDate)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if prior == nil {
		return decimal.Zero, nil
	}
	return prior.PpPdv.Field112, nil
}

func (s *Service) publish(ctx context.Context, fn func(context.Context, Event) error, period TaxPeriod, msg string) {
	ev := Event{
		EventID:       uuid.New(),
		PeriodID:      period.ID,
		TenantID:      period.TenantID,
		LegalEntityID: period.LegalEntityID,
		PeriodStart:   period.StartDate,
		PeriodEnd:     period.EndDate,
		OccurredAt:    s.now(),
	}
	if err := fn(ctx, ev); err != nil {
		s.logger.Warn(msg+" event publish", slog.Any("error", err), slog.Int64("period_id", period.ID))
	}
}

func declarationHeader(entity ledger.LegalEntity, period TaxPeriod) pppdv.Header {
	return pppdv.Header{
		PIB:   entity.PIB,
		Name:  entity.Name,
		Year:  period.EndDate.Year(),
		Month: int(period.EndDate.Month()),
	}
}

// settlementEntry sizes the debit/credit pair to the absolute liability. A
// payable nets the output VAT account against the payable account; a credit
// books a receivable against input VAT.
func settlementEntry(period TaxPeriod) posting.Entry {
	amount := period.VATLiability.Abs()
	memo := fmt.Sprintf("PDV obracun %s - %s", period.StartDate.Format("2006-01-02"), period.EndDate.Format("2006-01-02"))
	var lines []posting.Line
	if period.VATLiability.Sign() > 0 {
		lines = []posting.Line{
			{Account: accountOutputVAT, Debit: amount, Description: memo},
			{Account: accountVATPayable, Credit: amount, Description: memo},
		}
	} else {
		lines = []posting.Line{
			{Account: accountVATReceivable, Debit: amount, Description: memo},
			{Account: accountInputVAT, Credit: amount, Description: memo},
		}
	}
	return posting.Entry{
		SourceModule: settlementSourceModule,
		SourceID:     period.ReferenceID,
		Reference:    fmt.Sprintf("PDV-%d", period.ID),
		Date:         period.EndDate,
		Memo:         memo,
		Lines:        lines,
	}
}

func storedLines(res popdv.Result) []StoredLine {
	lines := make([]StoredLine, 0, len(res.OutputLines)+len(res.ReverseChargeLines)+len(res.InputLines))
	for _, l := range res.OutputLines {
		lines = append(lines, StoredLine{Section: SectionOutput, AggregatedLine: l})
	}
	for _, l := range res.ReverseChargeLines {
		lines = append(lines, StoredLine{Section: SectionReverseCharge, AggregatedLine: l})
	}
	for _, l := range res.InputLines {
		lines = append(lines, StoredLine{Section: SectionInput, AggregatedLine: l})
	}
	return lines
}
