// Package aggregator reduces normalized ERP rows into weekly fact rows.
//
// Every reducer drops rows without a resolvable date (or job number where one
// is needed), coerces unparsable measures to zero and records both in Stats.
// Output is sorted by its grouping key so the same rows in any order produce
// the same result.
package aggregator

import (
	"fmt"

	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
	"github.com/zsmith-jtec/AFKPI/pkg/weeks"
)

const (
	UnknownCategory     = "Unknown"
	UnknownProductGroup = "Unknown"

	// MaxWarnings bounds the warnings kept on Stats; counts are always exact.
	MaxWarnings = 100
)

// RowConversionWarning describes one recovered problem in one input row.
type RowConversionWarning struct {
	// Row is the 1-based data row, not counting the header.
	Row    int
	Column string
	Value  string
	Reason string
}

func (w RowConversionWarning) Error() string {
	if w.Column == "" {
		return fmt.Sprintf("row %d: %s", w.Row, w.Reason)
	}
	return fmt.Sprintf("row %d: %s '%s': %s", w.Row, w.Column, w.Value, w.Reason)
}

type Stats struct {
	RowsIn int
	// RowsDropped counts rows left out of every group.
	RowsDropped int
	// RowsCoerced counts rows that had at least one measure forced to zero.
	RowsCoerced int
	Warnings    []RowConversionWarning
}

func (s *Stats) warn(w RowConversionWarning) {
	if len(s.Warnings) < MaxWarnings {
		s.Warnings = append(s.Warnings, w)
	}
}

func (s *Stats) drop(w RowConversionWarning) {
	s.RowsDropped++
	s.warn(w)
}

// rowScanner reads one row and tracks whether any of its cells were coerced.
type rowScanner struct {
	stats   *Stats
	number  int
	row     tabular.Row
	coerced bool
}

func newRowScanner(stats *Stats, index int, row tabular.Row) *rowScanner {
	stats.RowsIn++
	return &rowScanner{stats: stats, number: index + 1, row: row}
}

func (rs *rowScanner) text(col string) string {
	return tabular.Value(rs.row, col)
}

func (rs *rowScanner) decimal(col string) decimal.Decimal {
	raw := rs.text(col)
	d, ok := ParseDecimal(raw)
	if !ok {
		rs.coerced = true
		rs.stats.warn(RowConversionWarning{Row: rs.number, Column: col, Value: raw, Reason: "not numeric, using 0"})
	}
	return d
}

func (rs *rowScanner) flag(col string) bool {
	raw := rs.text(col)
	b, ok := ParseBool(raw)
	if !ok {
		rs.coerced = true
		rs.stats.warn(RowConversionWarning{Row: rs.number, Column: col, Value: raw, Reason: "not a boolean, using false"})
	}
	return b
}

// optionalFlag is nil for empty or unreadable cells.
func (rs *rowScanner) optionalFlag(col string) *bool {
	raw := rs.text(col)
	if raw == "" {
		return nil
	}
	b, ok := ParseBool(raw)
	if !ok {
		rs.coerced = true
		rs.stats.warn(RowConversionWarning{Row: rs.number, Column: col, Value: raw, Reason: "not a boolean, ignored"})
		return nil
	}
	return &b
}

func (rs *rowScanner) week(dateColumns []string) (weeks.Week, bool) {
	cells := make([]string, 0, len(dateColumns))
	for _, c := range dateColumns {
		cells = append(cells, rs.text(c))
	}
	w, ok := weeks.FirstResolvable(cells...)
	if !ok {
		rs.stats.drop(RowConversionWarning{Row: rs.number, Reason: "no resolvable date, row dropped"})
	}
	return w, ok
}

func (rs *rowScanner) requireText(col string) (string, bool) {
	v := rs.text(col)
	if v == "" {
		rs.stats.drop(RowConversionWarning{Row: rs.number, Column: col, Reason: "empty, row dropped"})
		return "", false
	}
	return v, true
}

func (rs *rowScanner) done() {
	if rs.coerced {
		rs.stats.RowsCoerced++
	}
}

// bucket returns the value stored under key, creating it with create when absent.
func bucket[V any](m *orderedmap.OrderedMap[string, V], key string, create func() V) V {
	if v, ok := m.Get(key); ok {
		return v
	}
	v := create()
	m.Set(key, v)
	return v
}

func values[V any](m *orderedmap.OrderedMap[string, V]) []V {
	out := make([]V, 0, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
