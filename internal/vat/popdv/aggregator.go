package popdv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/morava-erp/morava-erp/internal/ledger"
)

// ErrUnknownClassification indicates a source line that maps to no statutory
// field. The whole calculation aborts; dropping the line would corrupt the
// declaration.
var ErrUnknownClassification = errors.New("popdv: source line does not map to a statutory field")

// Source abstracts the ledger read-side scanned by the aggregator.
type Source interface {
	ScanLines(ctx context.Context, tenantID uuid.UUID, class ledger.DocumentClass, legalEntityID *int64, start, end time.Time, fn func(ledger.SourceLine) error) error
}

// Aggregator classifies ledger lines for a date range into POPDV buckets.
// It is a pure read; repeated runs over unchanged ledger state produce
// identical output.
type Aggregator struct {
	source Source
}

// NewAggregator constructs an Aggregator over the given source.
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// section assignment of a classified line
type section int8

const (
	sectionOutput section = iota
	sectionReverse
	sectionInput
)

type classification struct {
	field   string
	dir     Direction
	section section
}

// Aggregate scans all document classes for the inclusive date range and
// returns the classified buckets. A nil legalEntityID aggregates across all
// entities of the tenant.
func (a *Aggregator) Aggregate(ctx context.Context, tenantID uuid.UUID, legalEntityID *int64, start, end time.Time) (Aggregation, error) {
	buckets := make([]map[string]*AggregatedLine, len(ledger.ScanOrder))

	g, gctx := errgroup.WithContext(ctx)
	for i, class := range ledger.ScanOrder {
		buckets[i] = make(map[string]*AggregatedLine)
		bucket := buckets[i]
		class := class
		g.Go(func() error {
			return a.source.ScanLines(gctx, tenantID, class, legalEntityID, start, end, func(line ledger.SourceLine) error {
				cls, err := classify(line)
				if err != nil {
					return err
				}
				accumulate(bucket, cls, line)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return Aggregation{}, err
	}

	// Merge per-class buckets in scan order; decimal addition is exact, so
	// the totals do not depend on row arrival order within a class.
	merged := make(map[string]*AggregatedLine)
	for _, bucket := range buckets {
		for key, line := range bucket {
			if existing, ok := merged[key]; ok {
				existing.TotalBase = existing.TotalBase.Add(line.TotalBase)
				existing.TotalVAT = existing.TotalVAT.Add(line.TotalVAT)
				existing.VATOS = existing.VATOS.Add(line.VATOS)
				existing.VATPS = existing.VATPS.Add(line.VATPS)
				existing.EntryCount += line.EntryCount
				continue
			}
			copied := *line
			merged[key] = &copied
		}
	}

	return splitSections(merged), nil
}

// classify derives the POPDV bucket for one line from direction, domestic or
// export, rate bucket and special-regime flag.
func classify(line ledger.SourceLine) (classification, error) {
	if line.DocClass == ledger.ClassImportDocument {
		// Dual-sided: builder adds the VAT to both the output and the
		// deduction totals.
		if !line.Rate.Equal(rateStandard) && !line.Rate.Equal(rateReduced) {
			return classification{}, classifyErr(line)
		}
		return classification{field: FieldSelfAssessed, dir: DirectionOutput, section: sectionReverse}, nil
	}

	if line.DocClass.Output() {
		switch {
		case line.SpecialRegime:
			return classification{field: FieldSpecialRegime, dir: DirectionOutput, section: sectionOutput}, nil
		case line.Rate.IsZero() && line.Export:
			return classification{field: FieldExportExempt, dir: DirectionOutput, section: sectionOutput}, nil
		case line.Rate.IsZero():
			return classification{field: FieldDomesticExempt, dir: DirectionOutput, section: sectionOutput}, nil
		case line.Rate.Equal(rateStandard) || line.Rate.Equal(rateReduced):
			return classification{field: FieldStandardSupplies, dir: DirectionOutput, section: sectionOutput}, nil
		default:
			return classification{}, classifyErr(line)
		}
	}

	// supplier invoices
	switch {
	case line.SpecialRegime && line.Rate.Equal(rateFarm):
		return classification{field: FieldInputFarm, dir: DirectionInput, section: sectionInput}, nil
	case line.Rate.Equal(rateStandard) || line.Rate.Equal(rateReduced):
		return classification{field: FieldInputDomestic, dir: DirectionInput, section: sectionInput}, nil
	case line.Rate.IsZero() && !line.SpecialRegime:
		return classification{field: FieldInputExempt, dir: DirectionInput, section: sectionInput}, nil
	default:
		return classification{}, classifyErr(line)
	}
}

func classifyErr(line ledger.SourceLine) error {
	return fmt.Errorf("%w: %s document %d line %d rate %s",
		ErrUnknownClassification, line.DocClass, line.DocumentID, line.LineNo, line.Rate)
}

func accumulate(bucket map[string]*AggregatedLine, cls classification, line ledger.SourceLine) {
	key := string(cls.dir) + "/" + cls.field + "/" + sectionKey(cls.section)
	agg, ok := bucket[key]
	if !ok {
		agg = &AggregatedLine{PopdvField: cls.field, Direction: cls.dir}
		bucket[key] = agg
	}
	agg.TotalBase = agg.TotalBase.Add(line.Base)
	agg.TotalVAT = agg.TotalVAT.Add(line.VAT)
	switch {
	case line.Rate.Equal(rateStandard):
		agg.VATOS = agg.VATOS.Add(line.VAT)
	case line.Rate.Equal(rateReduced):
		agg.VATPS = agg.VATPS.Add(line.VAT)
	}
	agg.EntryCount++
}

func sectionKey(s section) string {
	switch s {
	case sectionReverse:
		return "RC"
	case sectionInput:
		return "IN"
	default:
		return "OUT"
	}
}

func splitSections(merged map[string]*AggregatedLine) Aggregation {
	var agg Aggregation
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		line := *merged[key]
		switch {
		case line.PopdvField == FieldSelfAssessed:
			agg.ReverseChargeLines = append(agg.ReverseChargeLines, line)
		case line.Direction == DirectionInput:
			agg.InputLines = append(agg.InputLines, line)
		default:
			agg.OutputLines = append(agg.OutputLines, line)
		}
	}
	return agg
}
