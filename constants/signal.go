package constants

// Signal is the canonical name of a manufacturing fact carried in a SignalSet.
type Signal string

const (
	SignalMaterial         Signal = "material"
	SignalQty              Signal = "qty"
	SignalMachiningMinutes Signal = "machining_minutes"
	SignalWeightLbs        Signal = "material_weight_lbs"
	SignalLengthIn         Signal = "length_in"
	SignalWidthIn          Signal = "width_in"
	SignalHeightIn         Signal = "height_in"
	SignalComplexity       Signal = "complexity"
	SignalSize             Signal = "size"
	SignalTolerance        Signal = "tolerance"
)

// RequiredSignals is the fixed order in which missing inputs are reported.
var RequiredSignals = []Signal{
	SignalMaterial,
	SignalQty,
	SignalMachiningMinutes,
	SignalWeightLbs,
}

var allSignals = []Signal{
	SignalMaterial,
	SignalQty,
	SignalMachiningMinutes,
	SignalWeightLbs,
	SignalLengthIn,
	SignalWidthIn,
	SignalHeightIn,
	SignalComplexity,
	SignalSize,
	SignalTolerance,
}

// AllSignals returns every known signal name in canonical order.
func AllSignals() []Signal {
	out := make([]Signal, len(allSignals))
	copy(out, allSignals)
	return out
}

// IsKnownSignal reports whether name is a signal the extractor understands.
func IsKnownSignal(name string) bool {
	for _, s := range allSignals {
		if string(s) == name {
			return true
		}
	}
	return false
}

// Source identifies where a page of text or a metadata value came from.
// Lower rank wins when two sources disagree.
type Source string

const (
	SourceCAD  Source = "cad"
	SourceText Source = "text"
	SourceOCR  Source = "ocr"
)

// SourcePriority is the fixed order sources are consulted in.
var SourcePriority = []Source{SourceCAD, SourceText, SourceOCR}
