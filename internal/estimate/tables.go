package estimate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/drawing-quotes/internal/common"
)

// EnvPrefix selects environment overrides for scalar table values, e.g.
// QUOTE_TABLES_SETUP_COST=90 or QUOTE_TABLES_MATERIALS__TITANIUM__RATE_PER_LB=11.
const EnvPrefix = "QUOTE_TABLES_"

//go:embed tables.schema.json
var tablesSchema []byte

// MaterialParams are the per-material pricing inputs.
type MaterialParams struct {
	RatePerLb     float64 `yaml:"rate_per_lb" koanf:"rate_per_lb" json:"rate_per_lb"`
	Machinability float64 `yaml:"machinability" koanf:"machinability" json:"machinability"`
	Density       float64 `yaml:"density_lb_per_in3" koanf:"density_lb_per_in3" json:"density_lb_per_in3"`
	LeadBumpDays  int     `yaml:"lead_bump_days" koanf:"lead_bump_days" json:"lead_bump_days"`
}

// DiscountTier applies Factor to unit cost for quantities of at least MinQty.
type DiscountTier struct {
	MinQty int     `yaml:"min_qty" koanf:"min_qty" json:"min_qty"`
	Factor float64 `yaml:"factor" koanf:"factor" json:"factor"`
}

// LeadBand is the base lead time for parts of up to UpToMinutes each.
type LeadBand struct {
	UpToMinutes float64 `yaml:"up_to_minutes" koanf:"up_to_minutes" json:"up_to_minutes"`
	Days        int     `yaml:"days" koanf:"days" json:"days"`
}

// QtyStep adds Days of lead time for quantities of at least MinQty.
type QtyStep struct {
	MinQty int `yaml:"min_qty" koanf:"min_qty" json:"min_qty"`
	Days   int `yaml:"days" koanf:"days" json:"days"`
}

// Tables holds every constant the engine prices with.
type Tables struct {
	Version           string                    `yaml:"version" koanf:"version" json:"version"`
	MachineRatePerMin float64                   `yaml:"machine_rate_per_min" koanf:"machine_rate_per_min" json:"machine_rate_per_min"`
	SetupCost         float64                   `yaml:"setup_cost" koanf:"setup_cost" json:"setup_cost"`
	Materials         map[string]MaterialParams `yaml:"materials" koanf:"materials" json:"materials"`
	ComplexityFactor  map[string]float64        `yaml:"complexity_factor" koanf:"complexity_factor" json:"complexity_factor"`
	ToleranceFactor   map[string]float64        `yaml:"tolerance_factor" koanf:"tolerance_factor" json:"tolerance_factor"`
	ComplexityMinutes map[string]float64        `yaml:"complexity_minutes" koanf:"complexity_minutes" json:"complexity_minutes"`
	SizeFactor        map[string]float64        `yaml:"size_factor" koanf:"size_factor" json:"size_factor"`
	Discounts         []DiscountTier            `yaml:"discounts" koanf:"discounts" json:"discounts"`
	LeadBands         []LeadBand                `yaml:"lead_bands" koanf:"lead_bands" json:"lead_bands"`
	LeadDaysOver      int                       `yaml:"lead_days_over" koanf:"lead_days_over" json:"lead_days_over"`
	QtySteps          []QtyStep                 `yaml:"qty_steps" koanf:"qty_steps" json:"qty_steps"`
}

// DefaultTables returns the compiled-in rate tables.
func DefaultTables() *Tables {
	return &Tables{
		Version:           "default-1",
		MachineRatePerMin: 2.0,
		SetupCost:         75.0,
		Materials: map[string]MaterialParams{
			"aluminum":   {RatePerLb: 3.0, Machinability: 1.0, Density: 0.0975},
			"steel":      {RatePerLb: 2.8, Machinability: 1.1, Density: 0.283},
			"mild steel": {RatePerLb: 2.5, Machinability: 1.1, Density: 0.283},
			"stainless":  {RatePerLb: 4.5, Machinability: 1.25, Density: 0.290, LeadBumpDays: 1},
			"titanium":   {RatePerLb: 10.0, Machinability: 1.5, Density: 0.160, LeadBumpDays: 2},
			"brass":      {RatePerLb: 4.0, Machinability: 0.9, Density: 0.307},
			"copper":     {RatePerLb: 5.5, Machinability: 1.1, Density: 0.323},
			"delrin":     {RatePerLb: 2.2, Machinability: 0.7, Density: 0.051},
		},
		ComplexityFactor:  map[string]float64{"simple": 1.0, "moderate": 1.15, "complex": 1.4},
		ToleranceFactor:   map[string]float64{"normal": 1.0, "tight": 1.3, "aerospace": 1.7},
		ComplexityMinutes: map[string]float64{"simple": 30, "moderate": 60, "complex": 120},
		SizeFactor:        map[string]float64{"small": 1.0, "medium": 1.3, "large": 1.8},
		Discounts: []DiscountTier{
			{MinQty: 1, Factor: 1.0},
			{MinQty: 10, Factor: 0.95},
			{MinQty: 50, Factor: 0.90},
			{MinQty: 100, Factor: 0.85},
			{MinQty: 500, Factor: 0.80},
		},
		LeadBands: []LeadBand{
			{UpToMinutes: 45, Days: 3},
			{UpToMinutes: 90, Days: 5},
		},
		LeadDaysOver: 7,
		QtySteps: []QtyStep{
			{MinQty: 1, Days: 0},
			{MinQty: 25, Days: 1},
			{MinQty: 100, Days: 2},
			{MinQty: 500, Days: 4},
			{MinQty: 1000, Days: 6},
		},
	}
}

// LoadTables layers defaults, the YAML file at path (skipped when empty) and
// QUOTE_TABLES_* environment overrides, then validates the result.
func LoadTables(path string, logger *slog.Logger) (*Tables, error) {
	if logger == nil {
		logger = slog.Default()
	}
	k := koanf.New(".")

	defaults, err := DefaultTables().YAML()
	if err != nil {
		return nil, common.Internal("encode default tables", err)
	}
	if err := k.Load(bytesProvider(defaults), yaml.Parser()); err != nil {
		return nil, common.Internal("load default tables", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, common.InvalidArgument("tables", fmt.Sprintf("rate tables %s: %v", path, err))
		}
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, common.InvalidArgument("tables", fmt.Sprintf("reading %s: %v", path, err))
		}
		if err := validateSchema(fk.Raw()); err != nil {
			return nil, common.InvalidArgument("tables", fmt.Sprintf("%s: %v", path, err))
		}
		if err := k.Merge(fk); err != nil {
			return nil, common.Internal("merge rate tables", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, common.Internal("load table env overrides", err)
	}

	t := &Tables{}
	if err := k.Unmarshal("", t); err != nil {
		return nil, common.InvalidArgument("tables", fmt.Sprintf("decode rate tables: %v", err))
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	logger.Info("estimate.tables.loaded",
		"path", path,
		"version", t.Version,
		"materials", len(t.Materials),
	)
	return t, nil
}

// Validate checks the schema and the monotonicity the engine relies on.
func (t *Tables) Validate() error {
	b, err := json.Marshal(t)
	if err != nil {
		return common.Internal("encode tables", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return common.Internal("decode tables", err)
	}
	if err := validateSchema(doc); err != nil {
		return common.InvalidArgument("tables", err.Error())
	}

	if len(t.Discounts) == 0 || t.Discounts[0].MinQty != 1 {
		return common.InvalidArgument("discounts", "first tier must start at min_qty 1")
	}
	for i := 1; i < len(t.Discounts); i++ {
		prev, cur := t.Discounts[i-1], t.Discounts[i]
		if cur.MinQty <= prev.MinQty {
			return common.InvalidArgument("discounts", "min_qty must be strictly increasing")
		}
		if cur.Factor > prev.Factor {
			return common.InvalidArgument("discounts", "factor must not increase with quantity")
		}
	}
	for i := 1; i < len(t.LeadBands); i++ {
		prev, cur := t.LeadBands[i-1], t.LeadBands[i]
		if cur.UpToMinutes <= prev.UpToMinutes || cur.Days < prev.Days {
			return common.InvalidArgument("lead_bands", "bands must be increasing")
		}
	}
	if n := len(t.LeadBands); n > 0 && t.LeadDaysOver < t.LeadBands[n-1].Days {
		return common.InvalidArgument("lead_days_over", "must be at least the last band")
	}
	for i := 1; i < len(t.QtySteps); i++ {
		prev, cur := t.QtySteps[i-1], t.QtySteps[i]
		if cur.MinQty <= prev.MinQty || cur.Days < prev.Days {
			return common.InvalidArgument("qty_steps", "steps must be non-decreasing in quantity")
		}
	}
	return nil
}

// YAML renders the tables in the file format LoadTables reads.
func (t *Tables) YAML() ([]byte, error) {
	return yamlv3.Marshal(t)
}

// MaterialNames lists the priced materials in sorted order.
func (t *Tables) MaterialNames() []string {
	out := make([]string, 0, len(t.Materials))
	for name := range t.Materials {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func validateSchema(doc any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tables.schema.json", bytes.NewReader(tablesSchema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("tables.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	// round-trip so YAML ints and nested maps take their JSON shapes
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal tables: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal tables: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tables do not match schema: %w", err)
	}
	return nil
}

// bytesProvider feeds an in-memory document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("bytesProvider does not support Read")
}
