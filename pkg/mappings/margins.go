package mappings

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zsmith-jtec/AFKPI/pkg/aggregator"
	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
)

type MarginKey struct {
	ProductGroup string
	Category     string
}

// MarginTable maps (product group, category) to a target margin ratio.
type MarginTable struct {
	targets map[MarginKey]decimal.Decimal
}

func NewMarginTable(targets map[MarginKey]decimal.Decimal) *MarginTable {
	mt := &MarginTable{targets: make(map[MarginKey]decimal.Decimal, len(targets))}
	for k, v := range targets {
		mt.targets[MarginKey{strings.TrimSpace(k.ProductGroup), strings.TrimSpace(k.Category)}] = v
	}
	return mt
}

// TargetFor returns the target margin ratio for a product, if one is known.
func (mt *MarginTable) TargetFor(productGroup, category string) (decimal.Decimal, bool) {
	if mt == nil {
		return decimal.Zero, false
	}
	v, ok := mt.targets[MarginKey{strings.TrimSpace(productGroup), strings.TrimSpace(category)}]
	return v, ok
}

func (mt *MarginTable) Len() int {
	if mt == nil {
		return 0
	}
	return len(mt.targets)
}

var (
	marginGroupColumns  = []string{"Product Group", "ProductGroup", "Unnamed: 2"}
	marginValueColumns  = []string{"Target Margin", "TargetMargin", "Jtec US Margin"}
	marginGroupSkipVals = map[string]bool{"x": true, "X": true}
)

func firstColumn(t *tabular.Table, candidates []string) string {
	for _, c := range candidates {
		if t.HasColumn(c) {
			return c
		}
	}
	return ""
}

// ParseTargetMargin reads "30", "30%", "0.3" or "$0.30" style cells into a
// ratio. Values above 1 are percents.
func ParseTargetMargin(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")

	d, ok := aggregator.ParseDecimal(s)
	if !ok {
		return decimal.Zero, false
	}
	if percent || d.GreaterThan(decimal.NewFromInt(1)) {
		d = d.Div(decimal.NewFromInt(100))
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, false
	}
	return d.Round(4), true
}

// MarginsFromTable reads target margins from either a flat sheet
// (Product Group, Category, Target Margin) or the corporate mapping layout
// where the group is only written on the first row of each block.
func MarginsFromTable(t *tabular.Table) (*MarginTable, error) {
	groupCol := firstColumn(t, marginGroupColumns)
	valueCol := firstColumn(t, marginValueColumns)
	if groupCol == "" || valueCol == "" || !t.HasColumn("Category") {
		return nil, fmt.Errorf("margin table needs a product group, Category and target margin column; found [%s]", strings.Join(t.Columns, ", "))
	}

	targets := make(map[MarginKey]decimal.Decimal)
	currentGroup := ""
	for _, row := range t.Rows {
		if g := tabular.Value(row, groupCol); g != "" && !marginGroupSkipVals[g] {
			currentGroup = g
		}
		category := tabular.Value(row, "Category")
		if currentGroup == "" || category == "" {
			continue
		}
		target, ok := ParseTargetMargin(tabular.Value(row, valueCol))
		if !ok {
			continue
		}
		targets[MarginKey{ProductGroup: currentGroup, Category: category}] = target
	}
	return NewMarginTable(targets), nil
}

// LoadMarginTable reads a margin mapping spreadsheet. An empty path yields an
// empty table.
func LoadMarginTable(path string, sheet string) (*MarginTable, error) {
	if path == "" {
		return NewMarginTable(nil), nil
	}
	t, err := tabular.ReadFile(path, sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read margins file: %w", err)
	}
	return MarginsFromTable(t)
}
