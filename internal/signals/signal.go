// Package signals turns raw document text and CAD metadata into a sparse,
// validated set of manufacturing signals.
package signals

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/joseph-ayodele/drawing-quotes/constants"
)

// Set is a sparse mapping from signal name to a validated value.
// Values are string (enums), int (qty) or float64 (measures).
// A missing key means unknown; there are no placeholder entries.
type Set map[constants.Signal]any

// Clone returns a shallow copy; values are immutable scalars.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s Set) Has(name constants.Signal) bool {
	_, ok := s[name]
	return ok
}

func (s Set) Text(name constants.Signal) (string, bool) {
	v, ok := s[name].(string)
	return v, ok
}

func (s Set) Int(name constants.Signal) (int, bool) {
	v, ok := s[name].(int)
	return v, ok
}

func (s Set) Float(name constants.Signal) (float64, bool) {
	v, ok := s[name].(float64)
	return v, ok
}

// Merge applies overrides on top of s: every key in overrides replaces the
// existing value. Neither input is modified.
func Merge(base, overrides Set) Set {
	out := base.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Names returns the present signal names in canonical order.
func (s Set) Names() []constants.Signal {
	var out []constants.Signal
	for _, n := range constants.AllSignals() {
		if s.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Strings renders the set as name → text, the form used on the wire and in storage.
func (s Set) Strings() map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		switch x := v.(type) {
		case string:
			out[string(k)] = x
		case int:
			out[string(k)] = strconv.Itoa(x)
		case float64:
			out[string(k)] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[string(k)] = fmt.Sprint(x)
		}
	}
	return out
}

// MarshalJSON writes keys in sorted order.
func (s Set) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s))
	for k, v := range s {
		m[string(k)] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON re-validates every value so a decoded Set holds the same
// invariants as one built by the extractor.
func (s *Set) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Set, len(raw))
	for _, k := range keys {
		var text string
		if err := json.Unmarshal(raw[k], &text); err != nil {
			var num json.Number
			if err := json.Unmarshal(raw[k], &num); err != nil {
				return fmt.Errorf("signal %s: %w", k, err)
			}
			text = num.String()
		}
		v, verr := Parse(constants.Signal(k), text)
		if verr != nil {
			return verr
		}
		out[constants.Signal(k)] = v
	}
	*s = out
	return nil
}
