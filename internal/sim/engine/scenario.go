package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.schema.json
var scenarioSchemaJSON []byte

const scenarioSchemaURL = "scenario.schema.json"

// ErrInvalidScenario indicates a scenario that parses but cannot be simulated.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario describes a supply-chain world: a SKU catalogue and facilities
// that stock, sell, make and order those SKUs.
type Scenario struct {
	Name       string         `json:"name,omitempty"`
	Skus       []SkuSpec      `json:"skus"`
	Facilities []FacilitySpec `json:"facilities"`
	Demand     DemandSpec     `json:"demand,omitempty"`

	// SaleWindow is the number of ticks behind sale mean/std. Default 7.
	SaleWindow int `json:"sale_window,omitempty"`
	// PendingOrderDays is the horizon of per-product inbound schedules. Default 4.
	PendingOrderDays int `json:"pending_order_days,omitempty"`
}

// SkuSpec is one catalogue entry.
type SkuSpec struct {
	ID           int     `json:"id"`
	Name         string  `json:"name,omitempty"`
	Price        float64 `json:"price"`
	Cost         float64 `json:"cost"`
	ServiceLevel float64 `json:"service_level,omitempty"`
	SaleGamma    float64 `json:"sale_gamma,omitempty"`
}

// DemandSpec shapes customer demand around each seller's sale gamma.
type DemandSpec struct {
	// Amplitude is the relative swing around the mean, in [0, 1].
	Amplitude float64 `json:"amplitude,omitempty"`
	// Frequency scales ticks into noise space; smaller is smoother.
	Frequency float64 `json:"frequency,omitempty"`
}

// FacilitySpec is one facility.
type FacilitySpec struct {
	ID              int               `json:"id"`
	Name            string            `json:"name,omitempty"`
	Kind            string            `json:"kind,omitempty"`
	StorageCapacity float64           `json:"storage_capacity"`
	HoldingCost     float64           `json:"holding_cost,omitempty"`
	DeliveryCost    float64           `json:"delivery_cost,omitempty"`
	StockoutPenalty float64           `json:"stockout_penalty,omitempty"`
	Distribution    bool              `json:"distribution,omitempty"`
	Skus            []FacilitySkuSpec `json:"skus"`
}

// FacilitySkuSpec configures one SKU at a facility. A consumer unit exists
// when Consumer is set or Sources is non-empty.
type FacilitySkuSpec struct {
	SkuID          int     `json:"sku_id"`
	InitStock      float64 `json:"init_stock,omitempty"`
	Vlt            int     `json:"vlt,omitempty"`
	SaleGamma      float64 `json:"sale_gamma,omitempty"`
	Price          float64 `json:"price,omitempty"`
	Cost           float64 `json:"cost,omitempty"`
	Sources        []int   `json:"sources,omitempty"`
	Consumer       bool    `json:"consumer,omitempty"`
	Seller         bool    `json:"seller,omitempty"`
	Manufacture    bool    `json:"manufacture,omitempty"`
	ProductionRate float64 `json:"production_rate,omitempty"`
}

// HasConsumer reports whether the SKU gets a consumer unit.
func (s FacilitySkuSpec) HasConsumer() bool { return s.Consumer || len(s.Sources) > 0 }

var compiledSchema *jsonschema.Schema

func scenarioSchema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(scenarioSchemaURL, bytes.NewReader(scenarioSchemaJSON)); err != nil {
		return nil, fmt.Errorf("load scenario schema: %w", err)
	}
	s, err := c.Compile(scenarioSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	compiledSchema = s
	return s, nil
}

// LoadScenarioFile reads a JSON or YAML scenario, chosen by extension.
func LoadScenarioFile(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseScenarioYAML(raw)
	default:
		return ParseScenarioJSON(bytes.NewReader(raw))
	}
}

// ParseScenarioJSON decodes and validates a JSON scenario.
func ParseScenarioJSON(r io.Reader) (*Scenario, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return parseScenario(raw)
}

// ParseScenarioYAML decodes and validates a YAML scenario. The document is
// normalised to JSON first so both formats go through one schema.
func ParseScenarioYAML(raw []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml scenario: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert yaml scenario: %w", err)
	}
	return parseScenario(js)
}

func parseScenario(raw []byte) (*Scenario, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	schema, err := scenarioSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	var sc Scenario
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks cross references the schema cannot express.
func (s *Scenario) Validate() error {
	if len(s.Skus) == 0 || len(s.Facilities) == 0 {
		return fmt.Errorf("%w: need at least one sku and one facility", ErrInvalidScenario)
	}

	skus := append([]SkuSpec(nil), s.Skus...)
	sort.Slice(skus, func(i, j int) bool { return skus[i].ID < skus[j].ID })
	for i, sku := range skus {
		if sku.ID != i+1 {
			return fmt.Errorf("%w: sku ids must be 1..%d, found %d", ErrInvalidScenario, len(skus), sku.ID)
		}
	}

	facilities := make(map[int]FacilitySpec, len(s.Facilities))
	for _, f := range s.Facilities {
		if f.ID < 1 {
			return fmt.Errorf("%w: facility id %d", ErrInvalidScenario, f.ID)
		}
		if _, dup := facilities[f.ID]; dup {
			return fmt.Errorf("%w: facility %d declared twice", ErrInvalidScenario, f.ID)
		}
		facilities[f.ID] = f
	}

	for _, f := range s.Facilities {
		seen := make(map[int]bool, len(f.Skus))
		for _, fs := range f.Skus {
			if fs.SkuID < 1 || fs.SkuID > len(s.Skus) {
				return fmt.Errorf("%w: facility %d stocks unknown sku %d", ErrInvalidScenario, f.ID, fs.SkuID)
			}
			if seen[fs.SkuID] {
				return fmt.Errorf("%w: facility %d lists sku %d twice", ErrInvalidScenario, f.ID, fs.SkuID)
			}
			seen[fs.SkuID] = true
			for _, src := range fs.Sources {
				if src == f.ID {
					return fmt.Errorf("%w: facility %d sources sku %d from itself", ErrInvalidScenario, f.ID, fs.SkuID)
				}
				up, ok := facilities[src]
				if !ok {
					return fmt.Errorf("%w: facility %d sources sku %d from unknown facility %d", ErrInvalidScenario, f.ID, fs.SkuID, src)
				}
				if !up.stocks(fs.SkuID) {
					return fmt.Errorf("%w: source %d does not stock sku %d", ErrInvalidScenario, src, fs.SkuID)
				}
			}
		}
	}
	return nil
}

func (f FacilitySpec) stocks(skuID int) bool {
	for _, fs := range f.Skus {
		if fs.SkuID == skuID {
			return true
		}
	}
	return false
}

func (s *Scenario) withDefaults() Scenario {
	out := *s
	if out.SaleWindow <= 0 {
		out.SaleWindow = 7
	}
	if out.PendingOrderDays <= 0 {
		out.PendingOrderDays = 4
	}
	if out.Demand.Frequency <= 0 {
		out.Demand.Frequency = 0.15
	}
	out.Skus = append([]SkuSpec(nil), s.Skus...)
	sort.Slice(out.Skus, func(i, j int) bool { return out.Skus[i].ID < out.Skus[j].ID })
	for i := range out.Skus {
		if out.Skus[i].ServiceLevel <= 0 || out.Skus[i].ServiceLevel >= 1 {
			out.Skus[i].ServiceLevel = 0.95
		}
		if out.Skus[i].SaleGamma <= 0 {
			out.Skus[i].SaleGamma = 1
		}
	}
	out.Facilities = append([]FacilitySpec(nil), s.Facilities...)
	sort.Slice(out.Facilities, func(i, j int) bool { return out.Facilities[i].ID < out.Facilities[j].ID })
	return out
}
