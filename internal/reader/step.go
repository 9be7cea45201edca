package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

// ISO 10303-21 exchange structure ("STEP physical file") reader. It parses the
// header and every entity instance in the DATA section, then derives a small
// set of manufacturing metadata: product name, material designation, length
// unit and the bounding box of all cartesian points.

var errNotSTEP = errors.New("missing ISO-10303-21 header")

// stepRef is a reference to another entity instance (#123).
type stepRef int

// stepEnum is an enumeration literal such as .MILLI.
type stepEnum string

// stepTyped is NAME(params): a simple entity, one part of a complex entity,
// or a typed parameter like LENGTH_MEASURE(25.4).
type stepTyped struct {
	Name   string
	Params []any
}

type stepEntity struct {
	ID    int
	Parts []stepTyped
}

func (e stepEntity) part(name string) (stepTyped, bool) {
	for _, p := range e.Parts {
		if p.Name == name {
			return p, true
		}
	}
	return stepTyped{}, false
}

type stepFile struct {
	Header   []stepTyped
	Entities map[int]stepEntity
	Order    []int
}

func parseSTEP(ctx context.Context, data []byte) (*stepFile, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n\ufeff"), []byte("ISO-10303-21")) {
		return nil, errNotSTEP
	}

	f := &stepFile{Entities: map[int]stepEntity{}}
	section := ""
	for n, stmt := range splitStatements(stripComments(string(data))) {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		stmt = strings.TrimSpace(stmt)
		switch {
		case stmt == "" || strings.HasPrefix(stmt, "ISO-10303-21"):
			continue
		case strings.HasPrefix(stmt, "END-ISO-10303-21"):
			return f, nil
		case stmt == "HEADER":
			section = "header"
			continue
		case stmt == "DATA" || strings.HasPrefix(stmt, "DATA("):
			section = "data"
			continue
		case stmt == "ENDSEC":
			section = ""
			continue
		}

		p := &p21Parser{s: stmt}
		switch section {
		case "header":
			t, err := p.parseTyped()
			if err != nil {
				return nil, fmt.Errorf("header: %w", err)
			}
			f.Header = append(f.Header, t)
		case "data":
			e, err := p.parseInstance()
			if err != nil {
				return nil, fmt.Errorf("data: %w", err)
			}
			if _, dup := f.Entities[e.ID]; !dup {
				f.Order = append(f.Order, e.ID)
			}
			f.Entities[e.ID] = e
		}
	}
	return f, nil
}

// stripComments removes /* */ comments outside string literals.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			b.WriteByte(c)
			if c == '\'' {
				inStr = false
			}
			continue
		}
		if c == '\'' {
			inStr = true
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) && s[i+1] == '*' {
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				break
			}
			i += end + 3
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// splitStatements splits on ';' outside string literals. A doubled quote
// inside a string toggles twice and so leaves the state unchanged.
func splitStatements(s string) []string {
	var out []string
	inStr := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inStr = !inStr
		case ';':
			if !inStr {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

type p21Parser struct {
	s string
	i int
}

func (p *p21Parser) skipWS() {
	for p.i < len(p.s) {
		switch p.s[p.i] {
		case ' ', '\t', '\r', '\n':
			p.i++
		default:
			return
		}
	}
}

func (p *p21Parser) peek() byte {
	p.skipWS()
	if p.i >= len(p.s) {
		return 0
	}
	return p.s[p.i]
}

func (p *p21Parser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.i)
	}
	p.i++
	return nil
}

// parseInstance parses "#12 = NAME(...)" or "#12 = (A(...) B(...))".
func (p *p21Parser) parseInstance() (stepEntity, error) {
	if err := p.expect('#'); err != nil {
		return stepEntity{}, err
	}
	start := p.i
	for p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
		p.i++
	}
	id, err := strconv.Atoi(p.s[start:p.i])
	if err != nil {
		return stepEntity{}, fmt.Errorf("instance id: %w", err)
	}
	if err := p.expect('='); err != nil {
		return stepEntity{}, err
	}

	e := stepEntity{ID: id}
	if p.peek() == '(' {
		p.i++
		for p.peek() != ')' {
			if p.peek() == 0 {
				return stepEntity{}, fmt.Errorf("#%d: unterminated complex instance", id)
			}
			t, err := p.parseTyped()
			if err != nil {
				return stepEntity{}, fmt.Errorf("#%d: %w", id, err)
			}
			e.Parts = append(e.Parts, t)
		}
		p.i++
		return e, nil
	}
	t, err := p.parseTyped()
	if err != nil {
		return stepEntity{}, fmt.Errorf("#%d: %w", id, err)
	}
	e.Parts = []stepTyped{t}
	return e, nil
}

func isNameByte(c byte) bool {
	return c == '_' || c == '!' ||
		(c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func (p *p21Parser) parseTyped() (stepTyped, error) {
	p.skipWS()
	start := p.i
	for p.i < len(p.s) && isNameByte(p.s[p.i]) {
		p.i++
	}
	name := strings.ToUpper(p.s[start:p.i])
	if name == "" {
		return stepTyped{}, fmt.Errorf("expected entity name at offset %d", start)
	}
	if err := p.expect('('); err != nil {
		return stepTyped{}, err
	}
	params, err := p.parseList()
	if err != nil {
		return stepTyped{}, fmt.Errorf("%s: %w", name, err)
	}
	return stepTyped{Name: name, Params: params}, nil
}

// parseList reads comma-separated values up to and including the closing ')'.
func (p *p21Parser) parseList() ([]any, error) {
	var out []any
	if p.peek() == ')' {
		p.i++
		return out, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		switch p.peek() {
		case ',':
			p.i++
		case ')':
			p.i++
			return out, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' at offset %d", p.i)
		}
	}
}

func (p *p21Parser) parseValue() (any, error) {
	c := p.peek()
	switch {
	case c == 0:
		return nil, errors.New("unexpected end of statement")
	case c == '\'':
		return p.parseString()
	case c == '"':
		end := strings.IndexByte(p.s[p.i+1:], '"')
		if end < 0 {
			return nil, errors.New("unterminated binary literal")
		}
		v := p.s[p.i+1 : p.i+1+end]
		p.i += end + 2
		return v, nil
	case c == '#':
		p.i++
		start := p.i
		for p.i < len(p.s) && p.s[p.i] >= '0' && p.s[p.i] <= '9' {
			p.i++
		}
		n, err := strconv.Atoi(p.s[start:p.i])
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
		return stepRef(n), nil
	case c == '.':
		end := strings.IndexByte(p.s[p.i+1:], '.')
		if end < 0 {
			return nil, errors.New("unterminated enumeration")
		}
		v := stepEnum(strings.ToUpper(p.s[p.i+1 : p.i+1+end]))
		p.i += end + 2
		return v, nil
	case c == '$' || c == '*':
		p.i++
		return nil, nil
	case c == '(':
		p.i++
		return p.parseList()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		start := p.i
		p.i++
		for p.i < len(p.s) && strings.IndexByte("0123456789.eE+-", p.s[p.i]) >= 0 {
			p.i++
		}
		f, err := strconv.ParseFloat(p.s[start:p.i], 64)
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", p.s[start:p.i], err)
		}
		return f, nil
	case isNameByte(c):
		return p.parseTyped()
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", c, p.i)
}

func (p *p21Parser) parseString() (string, error) {
	p.i++ // opening quote
	var b strings.Builder
	for p.i < len(p.s) {
		c := p.s[p.i]
		if c == '\'' {
			if p.i+1 < len(p.s) && p.s[p.i+1] == '\'' {
				b.WriteByte('\'')
				p.i += 2
				continue
			}
			p.i++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.i++
	}
	return "", errors.New("unterminated string")
}

func paramString(params []any, i int) string {
	if i < len(params) {
		if s, ok := params[i].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func paramStrings(params []any, i int) []string {
	if i >= len(params) {
		return nil
	}
	list, ok := params[i].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range list {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// inchesPerUnit returns the scale from a LENGTH_UNIT instance to inches.
func inchesPerUnit(e stepEntity) (string, float64, bool) {
	if _, ok := e.part("LENGTH_UNIT"); !ok {
		return "", 0, false
	}
	if si, ok := e.part("SI_UNIT"); ok {
		var prefix stepEnum
		if len(si.Params) > 0 {
			prefix, _ = si.Params[0].(stepEnum)
		}
		switch prefix {
		case "MILLI":
			return "mm", 1 / 25.4, true
		case "CENTI":
			return "cm", 1 / 2.54, true
		case "":
			return "m", 1 / 0.0254, true
		}
		return strings.ToLower(string(prefix)) + "m", 0, false
	}
	if cb, ok := e.part("CONVERSION_BASED_UNIT"); ok {
		switch strings.ToUpper(paramString(cb.Params, 0)) {
		case "INCH", "IN":
			return "in", 1, true
		case "FOOT", "FT":
			return "ft", 12, true
		}
	}
	return "", 0, false
}

type bbox struct {
	min, max [3]float64
	points   int
	dims     int
}

func (b *bbox) add(coords []any) {
	var pt [3]float64
	n := 0
	for _, v := range coords {
		f, ok := v.(float64)
		if !ok || n == 3 {
			return
		}
		pt[n] = f
		n++
	}
	if n < 2 {
		return
	}
	if b.points == 0 {
		b.min, b.max = pt, pt
	}
	for i := 0; i < n; i++ {
		b.min[i] = math.Min(b.min[i], pt[i])
		b.max[i] = math.Max(b.max[i], pt[i])
	}
	if n > b.dims {
		b.dims = n
	}
	b.points++
}

// readSTEP fills doc with metadata derived from the exchange structure.
// A file that parses but holds no usable geometry or annotations is not an
// error; its metadata is simply sparse.
func (r *Reader) readSTEP(ctx context.Context, data []byte, doc *RawDocument) error {
	f, err := parseSTEP(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return common.NewAppError(common.KindUnsupportedFormat, "content", "unreadable STEP file", err)
	}
	doc.Method = "step-p21"
	md := doc.Metadata
	var notes []string

	for _, h := range f.Header {
		switch h.Name {
		case "FILE_DESCRIPTION":
			if d := strings.Join(paramStrings(h.Params, 0), " "); d != "" {
				md["description"] = d
				notes = append(notes, d)
			}
		case "FILE_NAME":
			if n := paramString(h.Params, 0); n != "" {
				md["file_name"] = n
			}
			if s := paramString(h.Params, 5); s != "" {
				md["originating_system"] = s
			}
		case "FILE_SCHEMA":
			if s := strings.Join(paramStrings(h.Params, 0), ","); s != "" {
				md["schema"] = s
			}
		}
	}

	var (
		box       bbox
		unitName  string
		unitScale float64
	)
	for _, id := range f.Order {
		e := f.Entities[id]
		if unitScale == 0 {
			if name, scale, ok := inchesPerUnit(e); ok {
				unitName, unitScale = name, scale
			}
		}
		for _, part := range e.Parts {
			switch part.Name {
			case "CARTESIAN_POINT":
				if len(part.Params) > 1 {
					if coords, ok := part.Params[1].([]any); ok {
						box.add(coords)
					}
				}
			case "PRODUCT":
				if name := paramString(part.Params, 1); name != "" {
					if _, seen := md["product"]; !seen {
						md["product"] = name
					}
					if desc := paramString(part.Params, 2); desc != "" && desc != name {
						notes = append(notes, desc)
					}
				}
			case "MATERIAL_DESIGNATION":
				if m := paramString(part.Params, 0); m != "" {
					md["material"] = m
				}
			case "DESCRIPTIVE_REPRESENTATION_ITEM":
				name, desc := paramString(part.Params, 0), paramString(part.Params, 1)
				if desc == "" {
					continue
				}
				if strings.Contains(strings.ToLower(name), "material") {
					if _, set := md["material"]; !set {
						md["material"] = desc
					}
				}
				if name != "" {
					notes = append(notes, name+": "+desc)
				} else {
					notes = append(notes, desc)
				}
			}
		}
	}

	md["entity_count"] = strconv.Itoa(len(f.Order))
	if unitName == "" {
		// AP203/AP214 exports default to millimetres
		unitName, unitScale = "mm", 1/25.4
		doc.Warnings = append(doc.Warnings, "no length unit declared; assuming millimetres")
	}
	md["length_unit"] = unitName

	if box.points >= 2 {
		dims := make([]float64, 0, 3)
		for i := 0; i < box.dims; i++ {
			dims = append(dims, (box.max[i]-box.min[i])*unitScale)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(dims)))
		keys := []constants.Signal{constants.SignalLengthIn, constants.SignalWidthIn, constants.SignalHeightIn}
		for i, d := range dims {
			if d > 0 {
				md[string(keys[i])] = strconv.FormatFloat(math.Round(d*1000)/1000, 'f', -1, 64)
			}
		}
		md["bbox_points"] = strconv.Itoa(box.points)
	} else {
		doc.Warnings = append(doc.Warnings, "no CAD geometry found")
	}

	if len(notes) > 0 {
		txt := Normalize(strings.Join(notes, "\n"))
		doc.Pages = []Page{{Number: 1, Text: txt, Source: constants.SourceCAD}}
		doc.Text = txt
	}
	return nil
}
