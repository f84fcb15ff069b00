/*
Package factory provides JSON/YAML to Go rate schedule conversion.

PURPOSE:
  Converts rate schedule definitions into plans.RateSchedule objects, so
  the tier table can change per deployment without code changes.

JSON SCHEMA:
  {
    "name": "standard",
    "tiers": [
      {"amount": 20,    "daily_rate_percent": 2},
      {"amount": "100", "daily_rate_percent": "2.5"}
    ]
  }

  The same document in YAML is accepted by ParseScheduleYAML. Amounts and
  rates may be numbers or numeric strings. Tier order does not matter.

USAGE:
  schedule, err := factory.LoadScheduleFile("rates.yaml")
  calc := plans.NewCalculator(schedule, loc)

SEE ALSO:
  - plans/rates.go: RateSchedule type definition
  - config/config.go: engine.rates_file points here
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// ScheduleJSON is the serialized representation of a rate schedule.
type ScheduleJSON struct {
	Name  string     `json:"name,omitempty" yaml:"name,omitempty"`
	Tiers []TierJSON `json:"tiers" yaml:"tiers"`
}

// TierJSON is one schedule row.
type TierJSON struct {
	Amount           Number `json:"amount" yaml:"amount"`
	DailyRatePercent Number `json:"daily_rate_percent" yaml:"daily_rate_percent"`
}

// Number is a decimal that decodes from a number or a numeric string.
type Number struct {
	decimal.Decimal
}

func (n *Number) UnmarshalJSON(data []byte) error {
	return n.parse(strings.Trim(string(data), `"`))
}

func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	return n.parse(node.Value)
}

func (n *Number) parse(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", generic.ErrInvalidTier, s)
	}
	n.Decimal = d
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

func (n Number) MarshalYAML() (any, error) {
	return n.Decimal.String(), nil
}

// =============================================================================
// PARSING
// =============================================================================

// ParseSchedule parses a JSON schedule document.
func ParseSchedule(data []byte) (*plans.RateSchedule, error) {
	var sj ScheduleJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return nil, fmt.Errorf("failed to parse schedule JSON: %w", err)
	}
	return FromJSON(sj)
}

// ParseScheduleYAML parses a YAML schedule document.
func ParseScheduleYAML(data []byte) (*plans.RateSchedule, error) {
	var sj ScheduleJSON
	if err := yaml.Unmarshal(data, &sj); err != nil {
		return nil, fmt.Errorf("failed to parse schedule YAML: %w", err)
	}
	return FromJSON(sj)
}

// LoadScheduleFile reads a schedule from disk, choosing the format by extension
// (.yaml/.yml, otherwise JSON).
func LoadScheduleFile(path string) (*plans.RateSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseScheduleYAML(data)
	default:
		return ParseSchedule(data)
	}
}

// FromJSON converts ScheduleJSON into a validated RateSchedule.
func FromJSON(sj ScheduleJSON) (*plans.RateSchedule, error) {
	tiers := make([]plans.RateTier, 0, len(sj.Tiers))
	for _, tj := range sj.Tiers {
		tiers = append(tiers, plans.RateTier{
			Amount:           tj.Amount.Decimal,
			DailyRatePercent: tj.DailyRatePercent.Decimal,
		})
	}
	schedule, err := plans.NewRateSchedule(tiers)
	if err != nil {
		if sj.Name != "" {
			return nil, fmt.Errorf("schedule %q: %w", sj.Name, err)
		}
		return nil, err
	}
	return schedule, nil
}

// ToJSON converts a RateSchedule to ScheduleJSON.
func ToJSON(name string, schedule *plans.RateSchedule) ScheduleJSON {
	sj := ScheduleJSON{Name: name}
	for _, t := range schedule.Tiers() {
		sj.Tiers = append(sj.Tiers, TierJSON{
			Amount:           Number{t.Amount},
			DailyRatePercent: Number{t.DailyRatePercent},
		})
	}
	return sj
}
