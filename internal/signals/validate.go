package signals

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

// Sanity ceilings; values above them are treated as misreads.
const (
	MaxQty              = 1_000_000
	MaxMachiningMinutes = 10_000.0
	MaxWeightLbs        = 20_000.0
	MaxDimensionIn      = 1_000.0
)

type signalDef struct {
	parse func(string) (any, error)
	rules []common.ValidationRule
}

var defs = map[constants.Signal]signalDef{
	constants.SignalMaterial:         {parse: parseMaterial, rules: []common.ValidationRule{common.Required, hasLetter}},
	constants.SignalQty:              {parse: parseInt, rules: []common.ValidationRule{common.PositiveInt, common.MaxInt(MaxQty)}},
	constants.SignalMachiningMinutes: {parse: parseFloat, rules: []common.ValidationRule{common.PositiveFloat, common.MaxFloat(MaxMachiningMinutes)}},
	constants.SignalWeightLbs:        {parse: parseFloat, rules: []common.ValidationRule{common.PositiveFloat, common.MaxFloat(MaxWeightLbs)}},
	constants.SignalLengthIn:         {parse: parseFloat, rules: []common.ValidationRule{common.PositiveFloat, common.MaxFloat(MaxDimensionIn)}},
	constants.SignalWidthIn:          {parse: parseFloat, rules: []common.ValidationRule{common.PositiveFloat, common.MaxFloat(MaxDimensionIn)}},
	constants.SignalHeightIn:         {parse: parseFloat, rules: []common.ValidationRule{common.PositiveFloat, common.MaxFloat(MaxDimensionIn)}},
	constants.SignalComplexity:       {parse: parseClass, rules: []common.ValidationRule{common.OneOf(constants.ComplexityClasses...)}},
	constants.SignalSize:             {parse: parseClass, rules: []common.ValidationRule{common.OneOf(constants.SizeClasses...)}},
	constants.SignalTolerance:        {parse: parseClass, rules: []common.ValidationRule{common.OneOf(constants.ToleranceClasses...)}},
}

// Parse converts raw text into the typed value for name and validates it.
// Failures are InvalidOverride errors naming the signal.
func Parse(name constants.Signal, raw string) (any, error) {
	def, ok := defs[name]
	if !ok {
		return nil, common.InvalidOverride(string(name), "unknown signal")
	}
	v, err := def.parse(raw)
	if err != nil {
		return nil, common.InvalidOverride(string(name), err.Error())
	}
	return v, Validate(name, v)
}

// Validate applies the signal's rules to an already typed value.
func Validate(name constants.Signal, v any) error {
	def, ok := defs[name]
	if !ok {
		return common.InvalidOverride(string(name), "unknown signal")
	}
	return common.NewValidator().Field(string(name), v, def.rules...).AsError(common.KindInvalidOverride)
}

func parseMaterial(raw string) (any, error) {
	m, ok := constants.Canonicalize(raw)
	if !ok {
		// "Aluminum 6061-T6" from a CAD designation or a form
		if kw := firstKeyword(raw); kw != "" {
			return kw, nil
		}
	}
	if len(m) > 64 {
		return nil, fmt.Errorf("material name too long")
	}
	return string(m), nil
}

func parseInt(raw string) (any, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// "10.0" from a form or spreadsheet
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return nil, fmt.Errorf("%q is not an integer", raw)
	}
	return int(f), nil
}

func parseFloat(raw string) (any, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", raw)
	}
	return f, nil
}

func parseClass(raw string) (any, error) {
	return strings.ToLower(strings.TrimSpace(raw)), nil
}

func hasLetter(fieldName string, value interface{}) *common.ValidationError {
	s, _ := value.(string)
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return nil
		}
	}
	return &common.ValidationError{Field: fieldName, Value: value, Message: "must name a material"}
}
