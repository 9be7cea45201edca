// Package estimate prices a signal set with rule-based tables, or reports the
// required signals that are still missing.
package estimate

import (
	"log/slog"
	"math"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

// Breakdown component names. They always sum to CostUSD.
const (
	MaterialCost  = "material_cost"
	MachiningCost = "machining_cost"
	SetupCost     = "setup_cost"
)

// Informational rate names reported outside the breakdown.
const (
	RateUnitCost      = "unit_cost"
	RateMachinePerMin = "machine_rate_per_min"
	RateMaterialPerLb = "material_rate_per_lb"
	RateDiscount      = "discount_factor"
)

// Confidence describes how much of a complete estimate rests on inferred inputs.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Estimate is either Incomplete (Missing + Message) or Complete (cost fields).
type Estimate struct {
	Status       constants.EstimateStatus `json:"status"`
	Missing      []constants.Signal       `json:"missing_inputs,omitempty"`
	Message      string                   `json:"message,omitempty"`
	CostUSD      float64                  `json:"cost_usd"`
	LeadTimeDays int                      `json:"lead_time_days"`
	Breakdown    map[string]float64       `json:"breakdown,omitempty"`
	Rates        map[string]float64       `json:"rates,omitempty"`
}

func (e *Estimate) Complete() bool {
	return e != nil && e.Status == constants.EstimateComplete
}

// Result is an estimate together with the values derived to produce it.
type Result struct {
	Estimate   *Estimate   `json:"estimate"`
	Inferred   signals.Set `json:"inferred,omitempty"`
	Confidence Confidence  `json:"confidence"`
}

type Engine struct {
	tables *Tables
	logger *slog.Logger
}

// NewEngine prices with t, or the compiled-in defaults when t is nil.
func NewEngine(t *Tables, logger *slog.Logger) *Engine {
	if t == nil {
		t = DefaultTables()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tables: t, logger: logger}
}

func (e *Engine) Tables() *Tables {
	return e.tables
}

// Quote derives missing weight and machining time where possible, then
// estimates. set itself is not modified.
func (e *Engine) Quote(set signals.Set) (*Result, error) {
	inferred := e.Derive(set)
	est, err := e.Estimate(signals.Merge(inferred, set))
	if err != nil {
		return nil, err
	}
	conf := ConfidenceHigh
	switch len(inferred) {
	case 0:
	case 1:
		conf = ConfidenceMedium
	default:
		conf = ConfidenceLow
	}
	return &Result{Estimate: est, Inferred: inferred, Confidence: conf}, nil
}

// Estimate is pure: the same signals and tables always give the same result.
func (e *Engine) Estimate(set signals.Set) (*Estimate, error) {
	var missing []constants.Signal
	for _, name := range constants.RequiredSignals {
		if !set.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &Estimate{
			Status:  constants.EstimateIncomplete,
			Missing: missing,
			Message: constants.IncompleteMessage,
		}, nil
	}

	material, _ := set.Text(constants.SignalMaterial)
	qty, _ := set.Int(constants.SignalQty)
	minutes, _ := set.Float(constants.SignalMachiningMinutes)
	weight, _ := set.Float(constants.SignalWeightLbs)

	params, ok := e.tables.Materials[material]
	if !ok {
		e.logger.Warn("estimate.unknown_material", "material", material)
		return nil, common.UnknownMaterial(material)
	}

	machineRate := e.tables.MachineRatePerMin * params.Machinability
	if c, ok := set.Text(constants.SignalComplexity); ok {
		machineRate *= factor(e.tables.ComplexityFactor, c)
	}
	if t, ok := set.Text(constants.SignalTolerance); ok {
		machineRate *= factor(e.tables.ToleranceFactor, t)
	}

	discount := e.discount(qty)
	materialEach := weight * params.RatePerLb
	machiningEach := minutes * machineRate
	unit := (materialEach + machiningEach) * discount

	cost := round2(e.tables.SetupCost + unit*float64(qty))
	material2 := round2(materialEach * discount * float64(qty))
	machining2 := round2(cost - e.tables.SetupCost - material2)

	est := &Estimate{
		Status:       constants.EstimateComplete,
		CostUSD:      cost,
		LeadTimeDays: e.leadTime(minutes, params, qty),
		Breakdown: map[string]float64{
			MaterialCost:  material2,
			MachiningCost: machining2,
			SetupCost:     e.tables.SetupCost,
		},
		Rates: map[string]float64{
			RateUnitCost:      round2(unit),
			RateMachinePerMin: round4(machineRate),
			RateMaterialPerLb: params.RatePerLb,
			RateDiscount:      discount,
		},
	}
	e.logger.Debug("estimate.complete",
		"material", material,
		"qty", qty,
		"cost_usd", est.CostUSD,
		"lead_time_days", est.LeadTimeDays,
	)
	return est, nil
}

// discount returns the factor of the highest tier qty reaches.
func (e *Engine) discount(qty int) float64 {
	f := 1.0
	for _, tier := range e.tables.Discounts {
		if qty >= tier.MinQty {
			f = tier.Factor
		}
	}
	return f
}

func (e *Engine) leadTime(minutes float64, params MaterialParams, qty int) int {
	days := e.tables.LeadDaysOver
	for _, band := range e.tables.LeadBands {
		if minutes <= band.UpToMinutes {
			days = band.Days
			break
		}
	}
	days += params.LeadBumpDays
	step := 0
	for _, s := range e.tables.QtySteps {
		if qty >= s.MinQty {
			step = s.Days
		}
	}
	days += step
	if days < 1 {
		days = 1
	}
	return days
}

func factor(table map[string]float64, class string) float64 {
	if f, ok := table[class]; ok {
		return f
	}
	return 1.0
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
