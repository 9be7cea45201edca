package constants

import (
	"strings"
)

type Material string

const (
	Aluminum   Material = "aluminum"
	Steel      Material = "steel"
	MildSteel  Material = "mild steel"
	Stainless  Material = "stainless"
	Titanium   Material = "titanium"
	Brass      Material = "brass"
	Copper     Material = "copper"
	Delrin     Material = "delrin"
	UnknownMat Material = ""
)

// DetectionOrder is the order material keywords are looked for in free text.
// "mild steel" and "stainless" must precede "steel".
var DetectionOrder = []string{
	"aluminum",
	"aluminium",
	"stainless",
	"mild steel",
	"steel",
	"titanium",
	"brass",
	"copper",
	"delrin",
	"acetal",
}

// Canonicalize maps a free-form material name onto a canonical material.
// It returns false when the name is empty or not recognised.
func Canonicalize(input string) (Material, bool) {
	normalized := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	if normalized == "" {
		return UnknownMat, false
	}

	synonyms := map[string]Material{
		"aluminium":       Aluminum,
		"al":              Aluminum,
		"6061":            Aluminum,
		"6061-t6":         Aluminum,
		"7075":            Aluminum,
		"alu":             Aluminum,
		"carbon steel":    Steel,
		"1018":            MildSteel,
		"low carbon":      MildSteel,
		"stainless steel": Stainless,
		"ss":              Stainless,
		"304":             Stainless,
		"316":             Stainless,
		"17-4":            Stainless,
		"ti":              Titanium,
		"ti-6al-4v":       Titanium,
		"acetal":          Delrin,
		"pom":             Delrin,
	}
	if m, ok := synonyms[normalized]; ok {
		return m, true
	}
	for _, m := range []Material{Aluminum, Steel, MildSteel, Stainless, Titanium, Brass, Copper, Delrin} {
		if normalized == string(m) {
			return m, true
		}
	}
	return Material(normalized), false
}

// Complexity, Size and Tolerance classes accepted as optional signals.
var (
	ComplexityClasses = []string{"simple", "moderate", "complex"}
	SizeClasses       = []string{"small", "medium", "large"}
	ToleranceClasses  = []string{"normal", "tight", "aerospace"}
)
