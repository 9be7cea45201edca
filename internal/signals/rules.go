package signals

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/drawing-quotes/constants"
)

// A rule returns candidate raw values for one signal found in text, best first.
// Candidates are validated by the caller; the first valid one wins.
type rule func(text string) []string

var rules = map[constants.Signal]rule{
	constants.SignalMaterial:         materialRule,
	constants.SignalQty:              qtyRule,
	constants.SignalMachiningMinutes: machiningRule,
	constants.SignalWeightLbs:        weightRule,
	constants.SignalLengthIn:         dimensionRule(0),
	constants.SignalWidthIn:          dimensionRule(1),
	constants.SignalHeightIn:         dimensionRule(2),
	constants.SignalComplexity:       labelRule(reComplexity),
	constants.SignalSize:             labelRule(reSize),
	constants.SignalTolerance:        toleranceRule,
}

const numPat = `(\d+(?:\.\d+)?|\.\d+)`

var (
	reMaterialLabel = regexp.MustCompile(`(?i)\bmat(?:eria)?l?\s*[:=]\s*([A-Za-z0-9][A-Za-z0-9 .\-]*)`)
	reQty           = regexp.MustCompile(`(?i)\b(?:qty|quantity|quan|no\.?\s+of\s+parts)\s*[:=\-]?\s*(\d[\d,]*)`)
	reQtyPcs        = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*(?:pcs|pieces|parts|off)\b`)
	reMachMinutes   = regexp.MustCompile(`(?i)\bmachining(?:\s+time)?\s*[:=]?\s*` + numPat + `\s*(?:min|mins|minutes)\b`)
	reMachHours     = regexp.MustCompile(`(?i)\bmachining(?:\s+time)?\s*[:=]?\s*` + numPat + `\s*(?:h|hr|hrs|hours)\b`)
	reMinutesOf     = regexp.MustCompile(`(?i)\b` + numPat + `\s*(?:min|mins|minutes)\s+(?:of\s+)?machining\b`)
	reWeight        = regexp.MustCompile(`(?i)\b(?:weight|wt|mass)\s*[:=]?\s*` + numPat + `\s*(lbs?|pounds|kg|g)\b`)
	reLbs           = regexp.MustCompile(`(?i)\b` + numPat + `\s*(lbs?|pounds)\b`)
	reDimTriple     = regexp.MustCompile(`(?i)` + numPat + `\s*(?:"|in\b)?\s*[x×]\s*` + numPat + `\s*(?:"|in\b)?\s*[x×]\s*` + numPat + `\s*(mm|in|inch|inches|")?`)
	reDimLabel      = regexp.MustCompile(`(?i)\b(length|width|height|thickness|thk)\s*[:=]\s*` + numPat + `\s*(mm|in|inch|inches|")?`)
	reComplexity    = regexp.MustCompile(`(?i)\bcomplexity\s*[:=]\s*(simple|moderate|complex)\b`)
	reSize          = regexp.MustCompile(`(?i)\bsize\s*(?:class)?\s*[:=]\s*(small|medium|large)\b`)
	reTolClass      = regexp.MustCompile(`(?i)\btolerance\s*(?:class)?\s*[:=]\s*(normal|tight|aerospace)\b`)
	reTolValue      = regexp.MustCompile(`(?i)(?:±|\+/-|\+-)\s*` + numPat + `\s*(mm)?`)
)

var materialKeywords = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(constants.DetectionOrder))
	for i, kw := range constants.DetectionOrder {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return out
}()

// materialRule prefers a labelled "MATERIAL:" field that names a known
// material, then falls back to the first known keyword in detection order.
func materialRule(text string) []string {
	var out []string
	for _, m := range reMaterialLabel.FindAllStringSubmatch(text, -1) {
		label := strings.TrimSpace(m[1])
		if mat, ok := constants.Canonicalize(label); ok {
			out = append(out, string(mat))
			continue
		}
		if kw := firstKeyword(label); kw != "" {
			out = append(out, kw)
		}
	}
	if kw := firstKeyword(text); kw != "" {
		out = append(out, kw)
	}
	return out
}

func firstKeyword(text string) string {
	for i, re := range materialKeywords {
		if re.MatchString(text) {
			mat, _ := constants.Canonicalize(constants.DetectionOrder[i])
			return string(mat)
		}
	}
	return ""
}

func qtyRule(text string) []string {
	var out []string
	for _, m := range reQty.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	for _, m := range reQtyPcs.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func machiningRule(text string) []string {
	var out []string
	for _, m := range reMachMinutes.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	for _, m := range reMachHours.FindAllStringSubmatch(text, -1) {
		if h, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, formatFloat(h*60))
		}
	}
	for _, m := range reMinutesOf.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func weightRule(text string) []string {
	var out []string
	for _, m := range reWeight.FindAllStringSubmatch(text, -1) {
		if lbs, ok := toPounds(m[1], m[2]); ok {
			out = append(out, lbs)
		}
	}
	for _, m := range reLbs.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func toPounds(value, unit string) (string, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(unit) {
	case "kg":
		f *= 2.20462
	case "g":
		f /= 453.592
	}
	return formatFloat(round(f, 3)), true
}

// dimensionRule picks the idx-th largest of an "A x B x C" callout, or a
// labelled length/width/height field.
func dimensionRule(idx int) rule {
	labels := map[int][]string{
		0: {"length"},
		1: {"width"},
		2: {"height", "thickness", "thk"},
	}[idx]
	return func(text string) []string {
		var out []string
		for _, m := range reDimLabel.FindAllStringSubmatch(text, -1) {
			for _, l := range labels {
				if strings.EqualFold(m[1], l) {
					if v, ok := toInches(m[2], m[3]); ok {
						out = append(out, formatFloat(v))
					}
				}
			}
		}
		for _, m := range reDimTriple.FindAllStringSubmatch(text, -1) {
			dims := make([]float64, 0, 3)
			for _, s := range m[1:4] {
				v, ok := toInches(s, m[4])
				if !ok {
					dims = nil
					break
				}
				dims = append(dims, v)
			}
			if len(dims) != 3 {
				continue
			}
			sort.Sort(sort.Reverse(sort.Float64Slice(dims)))
			out = append(out, formatFloat(dims[idx]))
		}
		return out
	}
}

func toInches(value, unit string) (float64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(unit, "mm") {
		f /= 25.4
	}
	return round(f, 4), true
}

func labelRule(re *regexp.Regexp) rule {
	return func(text string) []string {
		var out []string
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out = append(out, strings.ToLower(m[1]))
		}
		return out
	}
}

// toleranceRule reads an explicit class, else classifies the tightest
// ± callout on the drawing.
func toleranceRule(text string) []string {
	if out := labelRule(reTolClass)(text); len(out) > 0 {
		return out
	}
	tightest := math.Inf(1)
	for _, m := range reTolValue.FindAllStringSubmatch(text, -1) {
		v, ok := toInches(m[1], m[2])
		if ok && v > 0 && v < tightest {
			tightest = v
		}
	}
	switch {
	case math.IsInf(tightest, 1):
		return nil
	case tightest <= 0.0005:
		return []string{"aerospace"}
	case tightest <= 0.002:
		return []string{"tight"}
	default:
		return []string{"normal"}
	}
}

func round(f float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(f*p) / p
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
