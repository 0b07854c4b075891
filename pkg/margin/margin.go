// Package margin computes gross margin figures. The same calculation is used
// for a single product, a product group and report totals.
package margin

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Result struct {
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Margin  decimal.Decimal `json:"margin"`

	// MarginPercent is rounded half up to two places and is 0 when revenue
	// is not positive.
	MarginPercent decimal.Decimal `json:"marginPercent"`

	// Target is a ratio in [0, 1]; Variance is MarginPercent minus the
	// target in percent. Both are nil when no target is known.
	Target   *decimal.Decimal `json:"target"`
	Variance *decimal.Decimal `json:"variance"`
}

// Percent returns (revenue - cost) / revenue * 100 rounded to two places, or
// 0 when revenue is zero or negative.
func Percent(revenue, cost decimal.Decimal) decimal.Decimal {
	if !revenue.IsPositive() {
		return decimal.Zero
	}
	return revenue.Sub(cost).Mul(hundred).DivRound(revenue, 2)
}

// Calculate builds a Result. target may be nil.
func Calculate(revenue, cost decimal.Decimal, target *decimal.Decimal) Result {
	r := Result{
		Revenue:       revenue,
		Cost:          cost,
		Margin:        revenue.Sub(cost),
		MarginPercent: Percent(revenue, cost),
	}
	if target != nil {
		t := *target
		v := r.MarginPercent.Sub(t.Mul(hundred)).Round(2)
		r.Target = &t
		r.Variance = &v
	}
	return r
}

// Sum combines results by adding revenue and cost and recomputing the
// margin, so totals are never averages of percentages. The target is kept
// only when every input shares the same one.
func Sum(results ...Result) Result {
	revenue := decimal.Zero
	cost := decimal.Zero
	var target *decimal.Decimal
	sameTarget := true

	for i, r := range results {
		revenue = revenue.Add(r.Revenue)
		cost = cost.Add(r.Cost)

		if i == 0 {
			target = r.Target
		} else if !equalTargets(target, r.Target) {
			sameTarget = false
		}
	}
	if !sameTarget {
		target = nil
	}
	return Calculate(revenue, cost, target)
}

func equalTargets(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
