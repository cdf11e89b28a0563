package pppdv

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/morava-erp/morava-erp/internal/vat/popdv"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func standardOutput(base, vat string) popdv.AggregatedLine {
	return popdv.AggregatedLine{
		PopdvField: popdv.FieldStandardSupplies,
		Direction:  popdv.DirectionOutput,
		TotalBase:  dec(base),
		TotalVAT:   dec(vat),
		EntryCount: 1,
	}
}

func domesticInput(base, vat string) popdv.AggregatedLine {
	return popdv.AggregatedLine{
		PopdvField: popdv.FieldInputDomestic,
		Direction:  popdv.DirectionInput,
		TotalBase:  dec(base),
		TotalVAT:   dec(vat),
		EntryCount: 1,
	}
}

func TestMapSingleDomesticInvoice(t *testing.T) {
	res := popdv.Build(popdv.Aggregation{
		OutputLines: []popdv.AggregatedLine{standardOutput("10000", "2000")},
	}, popdv.Adjustments{})

	f := Map(res, decimal.Zero)

	assert.Equal(t, "10000.00", f.Field003.StringFixed(2))
	assert.Equal(t, "2000.00", f.Field105.StringFixed(2))
	assert.Equal(t, "0.00", f.Field109.StringFixed(2))
	assert.Equal(t, "2000.00", f.Field110.StringFixed(2))
	assert.Equal(t, "2000.00", f.Field111.StringFixed(2))
	assert.Equal(t, "0.00", f.Field112.StringFixed(2))
}

func TestMapOutputAndInput(t *testing.T) {
	res := popdv.Build(popdv.Aggregation{
		OutputLines: []popdv.AggregatedLine{standardOutput("10000", "2000")},
		InputLines:  []popdv.AggregatedLine{domesticInput("5000", "1000")},
	}, popdv.Adjustments{})

	f := Map(res, decimal.Zero)

	assert.Equal(t, "1000.00", f.Field109.StringFixed(2))
	assert.Equal(t, "1000.00", f.Field110.StringFixed(2))
	assert.Equal(t, "1000.00", f.Field111.StringFixed(2))
	assert.Equal(t, "0.00", f.Field112.StringFixed(2))
}

func TestMapInputOnlyCarriesCredit(t *testing.T) {
	res := popdv.Build(popdv.Aggregation{
		InputLines: []popdv.AggregatedLine{domesticInput("8000", "1600")},
	}, popdv.Adjustments{})

	f := Map(res, decimal.Zero)

	assert.Equal(t, "0.00", f.Field105.StringFixed(2))
	assert.Equal(t, "1600.00", f.Field109.StringFixed(2))
	assert.Equal(t, "-1600.00", f.Field110.StringFixed(2))
	assert.Equal(t, "0.00", f.Field111.StringFixed(2))
	assert.Equal(t, "1600.00", f.Field112.StringFixed(2))
}

func TestMapPriorCreditSurvivesEmptyPeriod(t *testing.T) {
	res := popdv.Build(popdv.Aggregation{}, popdv.Adjustments{})

	f := Map(res, dec("1600"))

	assert.Equal(t, "0.00", f.Field110.StringFixed(2))
	assert.Equal(t, "0.00", f.Field111.StringFixed(2))
	assert.Equal(t, "1600.00", f.Field112.StringFixed(2), "unused credit rolls forward")
}

func TestMapPriorCreditReducesLiability(t *testing.T) {
	res := popdv.Build(popdv.Aggregation{
		OutputLines: []popdv.AggregatedLine{standardOutput("10000", "2000")},
	}, popdv.Adjustments{})

	f := Map(res, dec("1600"))

	assert.Equal(t, "2000.00", f.Field110.StringFixed(2), "raw net stays unsettled")
	assert.Equal(t, "400.00", f.Field111.StringFixed(2))
	assert.Equal(t, "0.00", f.Field112.StringFixed(2))
}

func TestMapPriorCreditExceedsLiability(t *testing.T) {
	res := popdv.Build(popdv.Aggregation{
		OutputLines: []popdv.AggregatedLine{standardOutput("1000", "200")},
	}, popdv.Adjustments{})

	f := Map(res, dec("1600"))

	assert.Equal(t, "0.00", f.Field111.StringFixed(2))
	assert.Equal(t, "1400.00", f.Field112.StringFixed(2))
}

func TestMapAdjustmentFields(t *testing.T) {
	res := popdv.Build(popdv.Aggregation{
		InputLines: []popdv.AggregatedLine{domesticInput("5000", "1000")},
	}, popdv.Adjustments{NonDeductibleVAT: dec("200"), NetCorrections: dec("50")})

	f := Map(res, decimal.Zero)

	assert.Equal(t, "1000.00", f.Field008.StringFixed(2))
	assert.Equal(t, "200.00", f.Field108.StringFixed(2))
	assert.Equal(t, "50.00", f.Field009.StringFixed(2))
	assert.Equal(t, "850.00", f.Field109.StringFixed(2))
}

func TestMapNeverSetsBothSettlementFields(t *testing.T) {
	credits := []string{"0", "100", "1600", "2000", "5000"}
	res := popdv.Build(popdv.Aggregation{
		OutputLines: []popdv.AggregatedLine{standardOutput("10000", "2000")},
	}, popdv.Adjustments{})

	for _, credit := range credits {
		f := Map(res, dec(credit))
		assert.False(t, f.Field111.Sign() != 0 && f.Field112.Sign() != 0,
			"prior credit %s produced both a liability and a carry-forward", credit)
	}
}

func TestLiability(t *testing.T) {
	payable := Form{Field111: dec("400")}
	assert.Equal(t, "400.00", payable.Liability().StringFixed(2))

	credit := Form{Field112: dec("1600")}
	assert.Equal(t, "-1600.00", credit.Liability().StringFixed(2))
}
