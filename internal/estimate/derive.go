package estimate

import (
	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

// Derive fills required measures that can be computed from optional ones.
// Only absent signals are derived; the returned set holds just the new values.
//
//	material_weight_lbs = length × width × height × density(material)
//	machining_minutes   = base(complexity) × factor(size)
func (e *Engine) Derive(set signals.Set) signals.Set {
	out := signals.Set{}

	if !set.Has(constants.SignalWeightLbs) {
		if w, ok := e.weight(set); ok {
			out[constants.SignalWeightLbs] = w
		}
	}
	if !set.Has(constants.SignalMachiningMinutes) {
		if m, ok := e.minutes(set); ok {
			out[constants.SignalMachiningMinutes] = m
		}
	}

	if len(out) > 0 {
		e.logger.Debug("estimate.derived", "names", out.Names())
	}
	return out
}

func (e *Engine) weight(set signals.Set) (float64, bool) {
	material, ok := set.Text(constants.SignalMaterial)
	if !ok {
		return 0, false
	}
	params, ok := e.tables.Materials[material]
	if !ok || params.Density <= 0 {
		return 0, false
	}
	l, okL := set.Float(constants.SignalLengthIn)
	w, okW := set.Float(constants.SignalWidthIn)
	h, okH := set.Float(constants.SignalHeightIn)
	if !okL || !okW || !okH {
		return 0, false
	}
	lbs := round2(l * w * h * params.Density)
	if signals.Validate(constants.SignalWeightLbs, lbs) != nil {
		return 0, false
	}
	return lbs, true
}

func (e *Engine) minutes(set signals.Set) (float64, bool) {
	c, okC := set.Text(constants.SignalComplexity)
	s, okS := set.Text(constants.SignalSize)
	if !okC || !okS {
		return 0, false
	}
	base, ok := e.tables.ComplexityMinutes[c]
	if !ok {
		return 0, false
	}
	m := round2(base * factor(e.tables.SizeFactor, s))
	if signals.Validate(constants.SignalMachiningMinutes, m) != nil {
		return 0, false
	}
	return m, true
}
