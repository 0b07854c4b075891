package reportDataService

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/zsmith-jtec/AFKPI/pkg/margin"
)

type MarginRow struct {
	ProductGroup string `json:"productGroup"`
	Category     string `json:"category,omitempty"`
	JobCount     int    `json:"jobCount"`
	margin.Result
}

type MarginSummary struct {
	Week         *WeekSummary  `json:"week"`
	ProductGroup string        `json:"productGroup,omitempty"`
	Rows         []*MarginRow  `json:"rows"`
	Total        margin.Result `json:"total"`
}

type marginRevenueRow struct {
	Bucket       string
	Revenue      decimal.Decimal
	TargetMargin decimal.NullDecimal
}

type marginCostRow struct {
	Bucket   string
	Cost     decimal.Decimal
	JobCount int
}

// Outbound revenue against job costs. Costs reach a product through the
// job's product; costs of jobs without a product are not attributed.
const marginRevenueQuery = `
	select
		%[1]s as bucket,
		coalesce(sum(r.revenue), 0) as revenue,
		round(avg(p.target_margin), 4) as target_margin
	from fact_revenue as r
	join dim_product as p on (p.id = r.product_id)
	where
		r.week_id = @weekId
		and r.direction = 'OUTBOUND'
		and (@productGroup = '' or p.product_group = @productGroup)
	group by 1
`

const marginCostQuery = `
	select
		%[1]s as bucket,
		coalesce(sum(c.direct_labor + c.burden + c.material_cost), 0) as cost,
		count(distinct c.job_id) as job_count
	from fact_costs as c
	join dim_job as j on (j.id = c.job_id)
	join dim_product as p on (p.id = j.product_id)
	where
		c.week_id = @weekId
		and (@productGroup = '' or p.product_group = @productGroup)
	group by 1
`

// MarginSummary reports gross margin per product group for one week.
func (rds *ReportDataService) MarginSummary(ctx context.Context, filter ReportFilter) (*MarginSummary, error) {
	return rds.marginBy(ctx, filter, "p.product_group")
}

// MarginByCategory drills into the categories of filter.ProductGroup.
func (rds *ReportDataService) MarginByCategory(ctx context.Context, filter ReportFilter) (*MarginSummary, error) {
	if filter.ProductGroup == "" {
		return nil, fmt.Errorf("a product group is required to drill into categories")
	}
	return rds.marginBy(ctx, filter, "p.category")
}

func (rds *ReportDataService) marginBy(ctx context.Context, filter ReportFilter, keyColumn string) (*MarginSummary, error) {
	summary := &MarginSummary{
		ProductGroup: filter.ProductGroup,
		Rows:         make([]*MarginRow, 0),
		Total:        margin.Calculate(decimal.Zero, decimal.Zero, nil),
	}

	week, err := rds.GetWeekOrLatest(ctx, filter.Week)
	if err != nil {
		return nil, err
	}
	if week == nil {
		return summary, nil
	}
	summary.Week = newWeekSummary(week)

	revenues := make([]*marginRevenueRow, 0)
	res := rds.db.WithContext(ctx).Raw(fmt.Sprintf(marginRevenueQuery, keyColumn),
		sql.Named("weekId", week.Id),
		sql.Named("productGroup", filter.ProductGroup),
	).Scan(&revenues)
	if res.Error != nil {
		return nil, res.Error
	}

	costs := make([]*marginCostRow, 0)
	res = rds.db.WithContext(ctx).Raw(fmt.Sprintf(marginCostQuery, keyColumn),
		sql.Named("weekId", week.Id),
		sql.Named("productGroup", filter.ProductGroup),
	).Scan(&costs)
	if res.Error != nil {
		return nil, res.Error
	}

	seen := make(map[string]struct{})
	revenueByKey := make(map[string]*marginRevenueRow, len(revenues))
	for _, r := range revenues {
		revenueByKey[r.Bucket] = r
		seen[r.Bucket] = struct{}{}
	}
	costByKey := make(map[string]*marginCostRow, len(costs))
	for _, c := range costs {
		costByKey[c.Bucket] = c
		seen[c.Bucket] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]margin.Result, 0, len(keys))
	for _, k := range keys {
		revenue := decimal.Zero
		var target *decimal.Decimal
		if r, ok := revenueByKey[k]; ok {
			revenue = r.Revenue
			target = nullableDecimal(r.TargetMargin)
		}
		cost := decimal.Zero
		jobCount := 0
		if c, ok := costByKey[k]; ok {
			cost = c.Cost
			jobCount = c.JobCount
		}

		row := &MarginRow{
			JobCount: jobCount,
			Result:   margin.Calculate(revenue, cost, target),
		}
		if keyColumn == "p.category" {
			row.ProductGroup = filter.ProductGroup
			row.Category = k
		} else {
			row.ProductGroup = k
		}
		summary.Rows = append(summary.Rows, row)
		results = append(results, row.Result)
	}
	if len(results) > 0 {
		summary.Total = margin.Sum(results...)
	}
	return summary, nil
}
