package aggregator

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
	"github.com/zsmith-jtec/AFKPI/pkg/weeks"
)

// RateLookup resolves hourly labor and burden rates for a resource group.
type RateLookup interface {
	RatesFor(resourceGroup string) (laborRate decimal.Decimal, burdenRate decimal.Decimal, ok bool)
}

type LaborOptions struct {
	Rates RateLookup

	// Zero defaults fall back to 45.00 and 28.00.
	DefaultLaborRate  decimal.Decimal
	DefaultBurdenRate decimal.Decimal
}

type LaborRow struct {
	Week        weeks.Week
	JobNum      string
	LaborHours  decimal.Decimal
	BurdenHours decimal.Decimal
	DirectLabor decimal.Decimal
	Burden      decimal.Decimal
}

type MaterialRow struct {
	Week         weeks.Week
	JobNum       string
	MaterialCost decimal.Decimal
}

func jobWeekKey(w weeks.Week, jobNum string) string {
	return strings.Join([]string{w.Key(), jobNum}, "\x00")
}

func (o LaborOptions) rates(resourceGroup string) (decimal.Decimal, decimal.Decimal) {
	labor := o.DefaultLaborRate
	if labor.IsZero() {
		labor = decimal.RequireFromString(config.DefaultLaborRate)
	}
	burden := o.DefaultBurdenRate
	if burden.IsZero() {
		burden = decimal.RequireFromString(config.DefaultBurdenRate)
	}
	if o.Rates != nil && resourceGroup != "" {
		if l, b, ok := o.Rates.RatesFor(resourceGroup); ok {
			return l, b
		}
	}
	return labor, burden
}

// AggregateLabor groups labor detail by week and job and prices hours at the
// rate of each row's resource group.
func AggregateLabor(n *normalizer.Normalized, opts LaborOptions) ([]*LaborRow, *Stats) {
	stats := &Stats{}
	buckets := orderedmap.New[string, *LaborRow]()

	for i, row := range n.Table.Rows {
		rs := newRowScanner(stats, i, row)

		w, ok := rs.week(n.Schema.DateColumns)
		if !ok {
			continue
		}
		jobNum, ok := rs.requireText(normalizer.Col_JobNum)
		if !ok {
			continue
		}

		laborHours := rs.decimal(normalizer.Col_LaborHrs)
		burdenHours := rs.decimal(normalizer.Col_BurdenHrs)
		laborRate, burdenRate := opts.rates(rs.text(normalizer.Col_ResourceGrp))

		lr := bucket(buckets, jobWeekKey(w, jobNum), func() *LaborRow {
			return &LaborRow{
				Week:        w,
				JobNum:      jobNum,
				LaborHours:  decimal.Zero,
				BurdenHours: decimal.Zero,
				DirectLabor: decimal.Zero,
				Burden:      decimal.Zero,
			}
		})
		lr.LaborHours = lr.LaborHours.Add(laborHours)
		lr.BurdenHours = lr.BurdenHours.Add(burdenHours)
		lr.DirectLabor = lr.DirectLabor.Add(laborHours.Mul(laborRate))
		lr.Burden = lr.Burden.Add(burdenHours.Mul(burdenRate))
		rs.done()
	}

	out := values(buckets)
	for _, lr := range out {
		lr.LaborHours = round(lr.LaborHours)
		lr.BurdenHours = round(lr.BurdenHours)
		lr.DirectLabor = round(lr.DirectLabor)
		lr.Burden = round(lr.Burden)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessJobWeek(out[i].Week, out[i].JobNum, out[j].Week, out[j].JobNum)
	})
	return out, stats
}

// AggregateMaterial sums issued material cost by week and job.
func AggregateMaterial(n *normalizer.Normalized) ([]*MaterialRow, *Stats) {
	stats := &Stats{}
	buckets := orderedmap.New[string, *MaterialRow]()

	for i, row := range n.Table.Rows {
		rs := newRowScanner(stats, i, row)

		w, ok := rs.week(n.Schema.DateColumns)
		if !ok {
			continue
		}
		jobNum, ok := rs.requireText(normalizer.Col_JobNum)
		if !ok {
			continue
		}
		cost := rs.decimal(normalizer.Col_ExtCost)

		mr := bucket(buckets, jobWeekKey(w, jobNum), func() *MaterialRow {
			return &MaterialRow{Week: w, JobNum: jobNum, MaterialCost: decimal.Zero}
		})
		mr.MaterialCost = mr.MaterialCost.Add(cost)
		rs.done()
	}

	out := values(buckets)
	for _, mr := range out {
		mr.MaterialCost = round(mr.MaterialCost)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessJobWeek(out[i].Week, out[i].JobNum, out[j].Week, out[j].JobNum)
	})
	return out, stats
}

func lessJobWeek(aw weeks.Week, aj string, bw weeks.Week, bj string) bool {
	if !aw.WeekStart.Equal(bw.WeekStart) {
		return aw.WeekStart.Before(bw.WeekStart)
	}
	return aj < bj
}
