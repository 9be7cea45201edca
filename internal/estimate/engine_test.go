package estimate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

func completeSet(material string, qty int, minutes, weight float64) signals.Set {
	return signals.Set{
		constants.SignalMaterial:         material,
		constants.SignalQty:              qty,
		constants.SignalMachiningMinutes: minutes,
		constants.SignalWeightLbs:        weight,
	}
}

func TestEstimate_MissingInRequiredOrder(t *testing.T) {
	e := NewEngine(nil, nil)
	cases := []struct {
		name string
		set  signals.Set
		want []constants.Signal
	}{
		{
			name: "empty",
			set:  signals.Set{},
			want: []constants.Signal{constants.SignalMaterial, constants.SignalQty, constants.SignalMachiningMinutes, constants.SignalWeightLbs},
		},
		{
			name: "material and qty only",
			set:  signals.Set{constants.SignalMaterial: "aluminum", constants.SignalQty: 10},
			want: []constants.Signal{constants.SignalMachiningMinutes, constants.SignalWeightLbs},
		},
		{
			name: "weight only",
			set:  signals.Set{constants.SignalWeightLbs: 2.0},
			want: []constants.Signal{constants.SignalMaterial, constants.SignalQty, constants.SignalMachiningMinutes},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			est, err := e.Estimate(tc.set)
			require.NoError(t, err)
			assert.Equal(t, constants.EstimateIncomplete, est.Status)
			assert.Equal(t, tc.want, est.Missing)
			assert.Equal(t, constants.IncompleteMessage, est.Message)
			assert.False(t, est.Complete())
		})
	}
}

func TestEstimate_KnownValues(t *testing.T) {
	est, err := NewEngine(nil, nil).Estimate(completeSet("aluminum", 10, 30, 2))
	require.NoError(t, err)
	require.True(t, est.Complete())

	assert.InDelta(t, 702.0, est.CostUSD, 1e-9)
	assert.Equal(t, 3, est.LeadTimeDays)
	assert.InDelta(t, 57.0, est.Breakdown[MaterialCost], 1e-9)
	assert.InDelta(t, 570.0, est.Breakdown[MachiningCost], 1e-9)
	assert.InDelta(t, 75.0, est.Breakdown[SetupCost], 1e-9)
	assert.InDelta(t, 0.95, est.Rates[RateDiscount], 1e-9)
	assert.InDelta(t, 62.7, est.Rates[RateUnitCost], 1e-9)
}

func TestEstimate_BreakdownSumsToCost(t *testing.T) {
	e := NewEngine(nil, nil)
	for _, mat := range e.Tables().MaterialNames() {
		for _, qty := range []int{1, 7, 10, 33, 99, 100, 501, 2500} {
			set := completeSet(mat, qty, 47.3, 3.17)
			set[constants.SignalComplexity] = "complex"
			set[constants.SignalTolerance] = "tight"

			est, err := e.Estimate(set)
			require.NoError(t, err)
			sum := est.Breakdown[MaterialCost] + est.Breakdown[MachiningCost] + est.Breakdown[SetupCost]
			assert.InDelta(t, est.CostUSD, sum, 0.01, "%s qty=%d", mat, qty)
			assert.GreaterOrEqual(t, est.CostUSD, 0.0)
			assert.Greater(t, est.LeadTimeDays, 0)
			assert.Len(t, est.Breakdown, 3)
		}
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	e := NewEngine(nil, nil)
	set := completeSet("stainless", 42, 75, 4.2)
	first, err := e.Estimate(set)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := e.Estimate(set)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEstimate_UnitCostAndLeadTimeMonotonicInQty(t *testing.T) {
	e := NewEngine(nil, nil)
	prevUnit := math.Inf(1)
	prevLead := 0
	for qty := 1; qty <= 1500; qty += 7 {
		est, err := e.Estimate(completeSet("titanium", qty, 120, 5))
		require.NoError(t, err)
		unit := est.Rates[RateUnitCost]
		assert.LessOrEqual(t, unit, prevUnit, "qty=%d", qty)
		assert.GreaterOrEqual(t, est.LeadTimeDays, prevLead, "qty=%d", qty)
		prevUnit, prevLead = unit, est.LeadTimeDays
	}
}

func TestEstimate_UnknownMaterial(t *testing.T) {
	_, err := NewEngine(nil, nil).Estimate(completeSet("unobtainium", 1, 10, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknownMaterial)
	assert.Equal(t, common.KindUnknownMaterial, common.KindOf(err))

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "material", appErr.Field)
}

func TestEstimate_FactorsRaiseMachineRate(t *testing.T) {
	e := NewEngine(nil, nil)
	plain, err := e.Estimate(completeSet("steel", 5, 60, 2))
	require.NoError(t, err)

	hard := completeSet("steel", 5, 60, 2)
	hard[constants.SignalComplexity] = "complex"
	hard[constants.SignalTolerance] = "aerospace"
	tuned, err := e.Estimate(hard)
	require.NoError(t, err)

	assert.InDelta(t, 2.0*1.1, plain.Rates[RateMachinePerMin], 1e-9)
	assert.InDelta(t, 2.0*1.1*1.4*1.7, tuned.Rates[RateMachinePerMin], 1e-9)
	assert.Greater(t, tuned.Breakdown[MachiningCost], plain.Breakdown[MachiningCost])
	assert.Equal(t, plain.Breakdown[MaterialCost], tuned.Breakdown[MaterialCost])
}

func TestEstimate_LeadTimeBands(t *testing.T) {
	e := NewEngine(nil, nil)
	cases := []struct {
		material string
		minutes  float64
		want     int
	}{
		{"aluminum", 45, 3},
		{"aluminum", 46, 5},
		{"aluminum", 90, 5},
		{"aluminum", 91, 7},
		{"stainless", 30, 4},
		{"titanium", 100, 9},
	}
	for _, tc := range cases {
		est, err := e.Estimate(completeSet(tc.material, 1, tc.minutes, 1))
		require.NoError(t, err)
		assert.Equal(t, tc.want, est.LeadTimeDays, "%s %.0f min", tc.material, tc.minutes)
	}
}

func TestQuote_DerivesWeightAndMinutes(t *testing.T) {
	e := NewEngine(nil, nil)
	set := signals.Set{
		constants.SignalMaterial:   "aluminum",
		constants.SignalQty:        4,
		constants.SignalLengthIn:   10.0,
		constants.SignalWidthIn:    4.0,
		constants.SignalHeightIn:   1.0,
		constants.SignalComplexity: "moderate",
		constants.SignalSize:       "medium",
	}
	res, err := e.Quote(set)
	require.NoError(t, err)
	require.True(t, res.Estimate.Complete())

	assert.InDelta(t, 3.9, res.Inferred[constants.SignalWeightLbs], 1e-9)
	assert.InDelta(t, 78.0, res.Inferred[constants.SignalMachiningMinutes], 1e-9)
	assert.Equal(t, ConfidenceLow, res.Confidence)
	assert.False(t, set.Has(constants.SignalWeightLbs), "input set must not be modified")
}

func TestQuote_NeverOverridesPresentValues(t *testing.T) {
	e := NewEngine(nil, nil)
	set := completeSet("aluminum", 1, 12, 0.5)
	set[constants.SignalLengthIn] = 10.0
	set[constants.SignalWidthIn] = 10.0
	set[constants.SignalHeightIn] = 10.0
	set[constants.SignalComplexity] = "complex"
	set[constants.SignalSize] = "large"

	res, err := e.Quote(set)
	require.NoError(t, err)
	assert.Empty(t, res.Inferred)
	assert.Equal(t, ConfidenceHigh, res.Confidence)

	direct, err := e.Estimate(set)
	require.NoError(t, err)
	assert.Equal(t, direct, res.Estimate)
}

func TestQuote_NoDerivationWithoutDensity(t *testing.T) {
	e := NewEngine(nil, nil)
	set := signals.Set{
		constants.SignalMaterial: "unobtainium",
		constants.SignalLengthIn: 1.0,
		constants.SignalWidthIn:  1.0,
		constants.SignalHeightIn: 1.0,
	}
	res, err := e.Quote(set)
	require.NoError(t, err)
	assert.Empty(t, res.Inferred)
	assert.Equal(t, []constants.Signal{constants.SignalQty, constants.SignalMachiningMinutes, constants.SignalWeightLbs}, res.Estimate.Missing)
}
