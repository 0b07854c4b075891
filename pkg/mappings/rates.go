// Package mappings loads the optional lookup tables used while loading:
// hourly rates per resource group and target margins per product.
package mappings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zsmith-jtec/AFKPI/pkg/aggregator"
	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
	"gopkg.in/yaml.v3"
)

type Rate struct {
	LaborRate  decimal.Decimal
	BurdenRate decimal.Decimal
}

// RateTable maps resource groups to hourly rates. A nil table has no entries.
type RateTable struct {
	rates map[string]Rate
}

func NewRateTable(rates map[string]Rate) *RateTable {
	rt := &RateTable{rates: make(map[string]Rate, len(rates))}
	for group, r := range rates {
		rt.rates[normalizeKey(group)] = r
	}
	return rt
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// RatesFor implements aggregator.RateLookup. Resource groups are matched
// case-insensitively.
func (rt *RateTable) RatesFor(resourceGroup string) (decimal.Decimal, decimal.Decimal, bool) {
	if rt == nil {
		return decimal.Zero, decimal.Zero, false
	}
	r, ok := rt.rates[normalizeKey(resourceGroup)]
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return r.LaborRate, r.BurdenRate, true
}

func (rt *RateTable) Len() int {
	if rt == nil {
		return 0
	}
	return len(rt.rates)
}

var _ aggregator.RateLookup = (*RateTable)(nil)

type yamlRate struct {
	LaborRate  string `yaml:"labor_rate"`
	BurdenRate string `yaml:"burden_rate"`
}

// ParseRatesYAML reads a document of the form
//
//	WELD:
//	  labor_rate: 60.00
//	  burden_rate: 40.00
func ParseRatesYAML(data []byte) (*RateTable, error) {
	var doc map[string]yamlRate
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rates yaml: %w", err)
	}

	rates := make(map[string]Rate, len(doc))
	for group, r := range doc {
		rate, err := parseRate(group, r.LaborRate, r.BurdenRate)
		if err != nil {
			return nil, err
		}
		rates[group] = rate
	}
	return NewRateTable(rates), nil
}

func parseRate(group, labor, burden string) (Rate, error) {
	if strings.TrimSpace(group) == "" {
		return Rate{}, fmt.Errorf("rate entry without a resource group")
	}
	l, ok := aggregator.ParseDecimal(labor)
	if !ok || strings.TrimSpace(labor) == "" || l.IsNegative() {
		return Rate{}, fmt.Errorf("invalid labor rate '%s' for resource group '%s'", labor, group)
	}
	b, ok := aggregator.ParseDecimal(burden)
	if !ok || strings.TrimSpace(burden) == "" || b.IsNegative() {
		return Rate{}, fmt.Errorf("invalid burden rate '%s' for resource group '%s'", burden, group)
	}
	return Rate{LaborRate: l, BurdenRate: b}, nil
}

// RatesFromTable reads a spreadsheet with ResourceGrp, LaborRate and
// BurdenRate columns. Rows without a resource group are ignored.
func RatesFromTable(t *tabular.Table) (*RateTable, error) {
	for _, col := range []string{"ResourceGrp", "LaborRate", "BurdenRate"} {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("rate table is missing column '%s'", col)
		}
	}

	rates := make(map[string]Rate)
	for _, row := range t.Rows {
		group := tabular.Value(row, "ResourceGrp")
		if group == "" {
			continue
		}
		rate, err := parseRate(group, tabular.Value(row, "LaborRate"), tabular.Value(row, "BurdenRate"))
		if err != nil {
			return nil, err
		}
		rates[group] = rate
	}
	return NewRateTable(rates), nil
}

// LoadRateTable reads a rate table from a YAML or spreadsheet file. An empty
// path yields an empty table.
func LoadRateTable(path string) (*RateTable, error) {
	if path == "" {
		return NewRateTable(nil), nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rates file: %w", err)
		}
		return ParseRatesYAML(data)
	default:
		t, err := tabular.ReadFile(path, "")
		if err != nil {
			return nil, fmt.Errorf("failed to read rates file: %w", err)
		}
		return RatesFromTable(t)
	}
}
