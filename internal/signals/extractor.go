package signals

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/reader"
)

// Provenance records where an accepted signal value came from.
type Provenance struct {
	Source   constants.Source `json:"source"`
	Page     int              `json:"page,omitempty"`
	Override bool             `json:"override,omitempty"`
}

// Result is an extraction outcome with per-signal provenance.
type Result struct {
	Signals    Set
	Provenance map[constants.Signal]Provenance
}

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract returns the validated signals found in doc with overrides applied.
func (e *Extractor) Extract(doc *reader.RawDocument, overrides map[string]string) (Set, error) {
	res, err := e.ExtractWithProvenance(doc, overrides)
	if err != nil {
		return nil, err
	}
	return res.Signals, nil
}

// ExtractWithProvenance walks sources in priority order (CAD, text, OCR) for
// every signal; the first valid candidate wins. Overrides are validated with
// the same rules and replace extracted values unconditionally.
func (e *Extractor) ExtractWithProvenance(doc *reader.RawDocument, overrides map[string]string) (*Result, error) {
	parsed, err := ParseOverrides(overrides)
	if err != nil {
		e.logger.Warn("signals.override.invalid", "error", err)
		return nil, err
	}

	res := &Result{
		Signals:    Set{},
		Provenance: map[constants.Signal]Provenance{},
	}
	if doc != nil {
		for _, name := range constants.AllSignals() {
			v, prov, ok := e.find(doc, name)
			if !ok {
				continue
			}
			res.Signals[name] = v
			res.Provenance[name] = prov
		}
	}

	for name, v := range parsed {
		res.Signals[name] = v
		res.Provenance[name] = Provenance{Override: true}
	}

	filename := ""
	if doc != nil {
		filename = doc.Filename
	}
	e.logger.Info("signals.extracted",
		"file", filename,
		"found", len(res.Signals),
		"overrides", len(parsed),
		"names", res.Signals.Names(),
	)
	return res, nil
}

func (e *Extractor) find(doc *reader.RawDocument, name constants.Signal) (any, Provenance, bool) {
	for _, src := range constants.SourcePriority {
		if src == constants.SourceCAD {
			if raw, ok := doc.Metadata[string(name)]; ok {
				if v, err := Parse(name, raw); err == nil {
					return v, Provenance{Source: src}, true
				}
				e.logger.Debug("signals.candidate.rejected", "signal", name, "source", src, "raw", raw)
			}
		}
		for _, p := range doc.Pages {
			if p.Source != src || strings.TrimSpace(p.Text) == "" {
				continue
			}
			for _, raw := range rules[name](p.Text) {
				v, err := Parse(name, raw)
				if err != nil {
					e.logger.Debug("signals.candidate.rejected", "signal", name, "source", src, "page", p.Number, "raw", raw)
					continue
				}
				return v, Provenance{Source: src, Page: p.Number}, true
			}
		}
	}
	return nil, Provenance{}, false
}

// ParseOverrides validates caller-supplied values. Blank values are ignored;
// an unknown name or an invalid value is an InvalidOverride naming the field.
func ParseOverrides(overrides map[string]string) (Set, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := Set{}
	for _, k := range keys {
		raw := overrides[k]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(k))
		if !constants.IsKnownSignal(name) {
			return nil, common.InvalidOverride(k, "unknown signal")
		}
		v, err := Parse(constants.Signal(name), raw)
		if err != nil {
			return nil, err
		}
		out[constants.Signal(name)] = v
	}
	return out, nil
}
