package reportDataService

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
)

type RevenueByProduct struct {
	ProductGroup string            `json:"productGroup"`
	Category     string            `json:"category"`
	Direction    storage.Direction `json:"direction"`
	Revenue      decimal.Decimal   `json:"revenue"`
	OrderCount   int               `json:"orderCount"`
	TargetMargin *decimal.Decimal  `json:"targetMargin"`
}

type RevenueSummary struct {
	Week          *WeekSummary        `json:"week"`
	ByProduct     []*RevenueByProduct `json:"byProduct"`
	TotalInbound  decimal.Decimal     `json:"totalInbound"`
	TotalOutbound decimal.Decimal     `json:"totalOutbound"`
}

type revenueRow struct {
	ProductGroup string
	Category     string
	Direction    storage.Direction
	Revenue      decimal.Decimal
	OrderCount   int
	TargetMargin decimal.NullDecimal
}

func nullableDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// RevenueSummary totals revenue and order counts per product group,
// category and direction for one week.
func (rds *ReportDataService) RevenueSummary(ctx context.Context, filter ReportFilter) (*RevenueSummary, error) {
	summary := &RevenueSummary{
		ByProduct:     make([]*RevenueByProduct, 0),
		TotalInbound:  decimal.Zero,
		TotalOutbound: decimal.Zero,
	}

	week, err := rds.GetWeekOrLatest(ctx, filter.Week)
	if err != nil {
		return nil, err
	}
	if week == nil {
		return summary, nil
	}
	summary.Week = newWeekSummary(week)

	query := `
		select
			p.product_group,
			p.category,
			r.direction,
			coalesce(sum(r.revenue), 0) as revenue,
			coalesce(sum(r.order_count), 0) as order_count,
			max(p.target_margin) as target_margin
		from fact_revenue as r
		join dim_product as p on (p.id = r.product_id)
		where
			r.week_id = @weekId
			and (@productGroup = '' or p.product_group = @productGroup)
		group by 1, 2, 3
		order by 1, 2, 3
	`
	rows := make([]*revenueRow, 0)
	res := rds.db.WithContext(ctx).Raw(query,
		sql.Named("weekId", week.Id),
		sql.Named("productGroup", filter.ProductGroup),
	).Scan(&rows)
	if res.Error != nil {
		return nil, res.Error
	}

	for _, r := range rows {
		summary.ByProduct = append(summary.ByProduct, &RevenueByProduct{
			ProductGroup: r.ProductGroup,
			Category:     r.Category,
			Direction:    r.Direction,
			Revenue:      r.Revenue,
			OrderCount:   r.OrderCount,
			TargetMargin: nullableDecimal(r.TargetMargin),
		})
		if r.Direction == storage.Direction_Inbound {
			summary.TotalInbound = summary.TotalInbound.Add(r.Revenue)
		} else {
			summary.TotalOutbound = summary.TotalOutbound.Add(r.Revenue)
		}
	}
	return summary, nil
}
