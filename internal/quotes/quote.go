// Package quotes keeps per-quote session state. Updates to one quote are
// serialised; different quotes never wait on each other.
package quotes

import (
	"time"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/estimate"
	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
	"github.com/joseph-ayodele/drawing-quotes/internal/signals"
)

// Document identifies the upload a quote was made from.
type Document struct {
	Filename string           `json:"filename"`
	Format   constants.Format `json:"format"`
	SHA256   string           `json:"sha256"`
}

// Quote is one quoting session. Signals holds accepted values only; values
// the engine derived are kept apart in Inferred and recomputed on every update.
type Quote struct {
	ID         string              `json:"quote_id"`
	Document   Document            `json:"document"`
	Signals    signals.Set         `json:"signals"`
	Inferred   signals.Set         `json:"inferred,omitempty"`
	References []knowledge.Match   `json:"references"`
	Estimate   *estimate.Estimate  `json:"estimate"`
	Confidence estimate.Confidence `json:"confidence,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with q.
func (q *Quote) Clone() *Quote {
	if q == nil {
		return nil
	}
	out := *q
	out.Signals = q.Signals.Clone()
	out.Inferred = q.Inferred.Clone()
	out.References = append([]knowledge.Match(nil), q.References...)
	out.Warnings = append([]string(nil), q.Warnings...)
	if q.Estimate != nil {
		est := *q.Estimate
		est.Missing = append([]constants.Signal(nil), q.Estimate.Missing...)
		est.Breakdown = cloneFloats(q.Estimate.Breakdown)
		est.Rates = cloneFloats(q.Estimate.Rates)
		out.Estimate = &est
	}
	return &out
}

func cloneFloats(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
