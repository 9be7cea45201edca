package signals

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/reader"
)

func textDoc(pages ...reader.Page) *reader.RawDocument {
	return &reader.RawDocument{Filename: "part.pdf", Format: constants.PDF, Pages: pages, Metadata: map[string]string{}}
}

func TestRules(t *testing.T) {
	tests := []struct {
		name   string
		signal constants.Signal
		text   string
		want   string
	}{
		{"labelled material with grade", constants.SignalMaterial, "MATERIAL: 6061-T6 Aluminum", "aluminum"},
		{"abbreviated label", constants.SignalMaterial, "MATL: Delrin", "delrin"},
		{"keyword before steel", constants.SignalMaterial, "Finish: passivate. 304 STAINLESS", "stainless"},
		{"qty label", constants.SignalQty, "QTY: 25", "25"},
		{"qty pieces", constants.SignalQty, "Make 40 pcs per lot", "40"},
		{"qty thousands", constants.SignalQty, "Quantity: 1,000", "1,000"},
		{"machining minutes", constants.SignalMachiningMinutes, "Machining: 45 min", "45"},
		{"machining hours", constants.SignalMachiningMinutes, "Machining time: 1.5 hrs", "90"},
		{"minutes of machining", constants.SignalMachiningMinutes, "needs 30 minutes of machining", "30"},
		{"weight grams", constants.SignalWeightLbs, "Weight: 500 g", "1.102"},
		{"weight kg", constants.SignalWeightLbs, "WT = 2 kg", "4.409"},
		{"bare pounds", constants.SignalWeightLbs, "approx 12 lbs", "12"},
		{"thickness label in mm", constants.SignalHeightIn, "THK: 6.35 mm", "0.25"},
		{"triple inches length", constants.SignalLengthIn, `4" x 2" x 1"`, "4"},
		{"triple inches width", constants.SignalWidthIn, `1 x 4 x 2 in`, "2"},
		{"triple mm height", constants.SignalHeightIn, "100 x 50 x 25 mm", "0.9843"},
		{"complexity", constants.SignalComplexity, "Complexity: Complex", "complex"},
		{"size class", constants.SignalSize, "SIZE CLASS: Large", "large"},
		{"tolerance class", constants.SignalTolerance, "TOLERANCE CLASS: Tight", "tight"},
		{"tightest callout aerospace", constants.SignalTolerance, "±0.01 and ± 0.0004", "aerospace"},
		{"tight callout", constants.SignalTolerance, "+/- 0.001", "tight"},
		{"loose callout", constants.SignalTolerance, "+/- 0.5 mm", "normal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rules[tt.signal](tt.text)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.want, got[0])
		})
	}

	assert.Empty(t, rules[constants.SignalQty]("no quantities here"))
	assert.Empty(t, rules[constants.SignalTolerance]("no callouts"))
}

func TestExtractFromText(t *testing.T) {
	doc := textDoc(reader.Page{Number: 1, Source: constants.SourceText, Text: "MATERIAL: 6061-T6 Aluminum\nQTY: 25\n" +
		"Machining time: 1.5 hrs\nWeight: 2 kg\nOverall 100 x 50 x 25 mm\nTOLERANCE ±0.001"})

	got, err := NewExtractor(nil).Extract(doc, nil)
	require.NoError(t, err)

	mat, _ := got.Text(constants.SignalMaterial)
	qty, _ := got.Int(constants.SignalQty)
	mins, _ := got.Float(constants.SignalMachiningMinutes)
	lbs, _ := got.Float(constants.SignalWeightLbs)
	length, _ := got.Float(constants.SignalLengthIn)
	tol, _ := got.Text(constants.SignalTolerance)

	assert.Equal(t, "aluminum", mat)
	assert.Equal(t, 25, qty)
	assert.InDelta(t, 90, mins, 1e-9)
	assert.InDelta(t, 4.409, lbs, 1e-9)
	assert.InDelta(t, 3.937, length, 1e-9)
	assert.Equal(t, "tight", tol)
	assert.False(t, got.Has(constants.SignalComplexity))
}

func TestExtractSourcePriority(t *testing.T) {
	doc := textDoc(
		reader.Page{Number: 1, Source: constants.SourceText, Text: "MATERIAL: Steel\nQTY: 0"},
		reader.Page{Number: 2, Source: constants.SourceOCR, Text: "QTY: 4 Brass"},
	)
	doc.Metadata["material"] = "Titanium"
	doc.Metadata["length_in"] = "not-a-number"
	doc.Metadata["width_in"] = "1.25"

	res, err := NewExtractor(nil).ExtractWithProvenance(doc, nil)
	require.NoError(t, err)

	assert.Equal(t, "titanium", res.Signals[constants.SignalMaterial])
	assert.Equal(t, Provenance{Source: constants.SourceCAD}, res.Provenance[constants.SignalMaterial])

	// qty 0 on the text layer is invalid, so the OCR page supplies it
	assert.Equal(t, 4, res.Signals[constants.SignalQty])
	assert.Equal(t, Provenance{Source: constants.SourceOCR, Page: 2}, res.Provenance[constants.SignalQty])

	assert.Equal(t, 1.25, res.Signals[constants.SignalWidthIn])
	assert.False(t, res.Signals.Has(constants.SignalLengthIn))
}

func TestExtractCADMaterialDesignation(t *testing.T) {
	doc := &reader.RawDocument{
		Filename: "bracket.step",
		Format:   constants.STEP,
		Metadata: map[string]string{"material": "Aluminum 6061-T6"},
	}
	doc.Pages = []reader.Page{{Number: 1, Source: constants.SourceText, Text: "MATERIAL: Steel"}}

	res, err := NewExtractor(nil).ExtractWithProvenance(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, "aluminum", res.Signals[constants.SignalMaterial])
	assert.Equal(t, Provenance{Source: constants.SourceCAD}, res.Provenance[constants.SignalMaterial])

	v, err := Parse(constants.SignalMaterial, "304 Stainless Steel bar")
	require.NoError(t, err)
	assert.Equal(t, "stainless", v)

	// names with no known keyword are kept for the engine to reject
	v, err = Parse(constants.SignalMaterial, "Unobtainium")
	require.NoError(t, err)
	assert.Equal(t, "unobtainium", v)
}

func TestExtractOverrides(t *testing.T) {
	doc := textDoc(reader.Page{Number: 1, Source: constants.SourceText, Text: "MATERIAL: Aluminum\nQTY: 10"})

	res, err := NewExtractor(nil).ExtractWithProvenance(doc, map[string]string{
		"qty":        "7",
		"Material":   "ss",
		"complexity": "",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Signals[constants.SignalQty])
	assert.Equal(t, "stainless", res.Signals[constants.SignalMaterial])
	assert.True(t, res.Provenance[constants.SignalQty].Override)
	assert.False(t, res.Signals.Has(constants.SignalComplexity))

	got, err := NewExtractor(nil).Extract(nil, map[string]string{"machining_minutes": "12.5"})
	require.NoError(t, err)
	assert.Equal(t, []constants.Signal{constants.SignalMachiningMinutes}, got.Names())
}

func TestParseOverridesErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    map[string]string
		field string
	}{
		{"negative qty", map[string]string{"qty": "-3"}, "qty"},
		{"fractional qty", map[string]string{"qty": "2.5"}, "qty"},
		{"not a number", map[string]string{"material_weight_lbs": "heavy"}, "material_weight_lbs"},
		{"too large", map[string]string{"length_in": "5000"}, "length_in"},
		{"bad class", map[string]string{"tolerance": "loose"}, "tolerance"},
		{"unknown signal", map[string]string{"colour": "red"}, "colour"},
		{"material without letters", map[string]string{"material": "1234"}, "material"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOverrides(tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidOverride)
			var ae *common.AppError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.field, ae.Field)
		})
	}
}

func TestParseNormalizes(t *testing.T) {
	v, err := Parse(constants.SignalQty, "10.0")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = Parse(constants.SignalQty, "1,000")
	require.NoError(t, err)
	assert.Equal(t, 1000, v)

	v, err = Parse(constants.SignalMaterial, "  Stainless   Steel ")
	require.NoError(t, err)
	assert.Equal(t, "stainless", v)

	v, err = Parse(constants.SignalSize, " Medium ")
	require.NoError(t, err)
	assert.Equal(t, "medium", v)
}

func TestSetJSON(t *testing.T) {
	in := Set{
		constants.SignalMaterial: "aluminum",
		constants.SignalQty:      10,
		constants.SignalLengthIn: 2.5,
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"material":"aluminum","qty":10,"length_in":2.5}`, string(b))

	var out Set
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, map[string]string{"material": "aluminum", "qty": "10", "length_in": "2.5"}, out.Strings())

	err = json.Unmarshal([]byte(`{"qty":"zero"}`), &out)
	assert.ErrorIs(t, err, common.ErrInvalidOverride)
}

func TestMergeLeavesInputs(t *testing.T) {
	base := Set{constants.SignalMaterial: "steel", constants.SignalQty: 2}
	over := Set{constants.SignalQty: 9}

	merged := Merge(base, over)
	assert.Equal(t, 9, merged[constants.SignalQty])
	assert.Equal(t, "steel", merged[constants.SignalMaterial])
	assert.Equal(t, 2, base[constants.SignalQty])
	assert.Len(t, over, 1)
}
