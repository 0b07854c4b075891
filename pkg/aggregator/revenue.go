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

type RevenueOptions struct {
	// DefaultDirection applies to rows that are not flagged as open orders.
	DefaultDirection config.RevenueDirection

	// ForceDirection, when set, overrides the per-row open order flag.
	ForceDirection config.RevenueDirection

	DefaultProductLine string
}

type RevenueRow struct {
	Week         weeks.Week
	ProductLine  string
	ProductGroup string
	Category     string
	Direction    config.RevenueDirection
	Revenue      decimal.Decimal
	OrderCount   int
}

type revenueBucket struct {
	row    *RevenueRow
	orders map[string]struct{}
}

func revenueKey(w weeks.Week, group, category string, direction config.RevenueDirection) string {
	return strings.Join([]string{w.Key(), group, category, string(direction)}, "\x00")
}

// AggregateRevenue groups revenue rows by week, product group, category and
// direction. order_count counts distinct order numbers; rows without one
// count once each.
func AggregateRevenue(n *normalizer.Normalized, opts RevenueOptions) ([]*RevenueRow, *Stats) {
	stats := &Stats{}
	defaultDirection := opts.DefaultDirection
	if defaultDirection == "" {
		defaultDirection = config.RevenueDirection_Outbound
	}
	productLine := opts.DefaultProductLine
	if productLine == "" {
		productLine = config.DefaultProductLine
	}
	hasOpenOrder := n.HasColumn(normalizer.Col_OpenOrder)

	buckets := orderedmap.New[string, *revenueBucket]()
	for i, row := range n.Table.Rows {
		rs := newRowScanner(stats, i, row)

		w, ok := rs.week(n.Schema.DateColumns)
		if !ok {
			continue
		}

		direction := defaultDirection
		switch {
		case opts.ForceDirection != "":
			direction = opts.ForceDirection
		case hasOpenOrder && rs.flag(normalizer.Col_OpenOrder):
			direction = config.RevenueDirection_Inbound
		}

		group := rs.text(normalizer.Col_ProdCode)
		if group == "" {
			group = UnknownProductGroup
		}
		category := rs.text(normalizer.Col_PartClass)
		if category == "" {
			category = UnknownCategory
		}
		amount := rs.decimal(normalizer.Col_DocExtPrice)

		b := bucket(buckets, revenueKey(w, group, category, direction), func() *revenueBucket {
			return &revenueBucket{
				row: &RevenueRow{
					Week:         w,
					ProductGroup: group,
					Category:     category,
					Direction:    direction,
					Revenue:      decimal.Zero,
				},
				orders: make(map[string]struct{}),
			}
		})
		b.row.Revenue = b.row.Revenue.Add(amount)
		if orderNum := rs.text(normalizer.Col_OrderNum); orderNum != "" {
			b.orders[orderNum] = struct{}{}
		}
		if b.row.ProductLine == "" {
			b.row.ProductLine = rs.text(normalizer.Col_ProdLine)
		}
		rs.done()
	}

	out := make([]*RevenueRow, 0, buckets.Len())
	for _, b := range values(buckets) {
		b.row.Revenue = round(b.row.Revenue)
		b.row.OrderCount = len(b.orders)
		if b.row.ProductLine == "" {
			b.row.ProductLine = productLine
		}
		out = append(out, b.row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Week.WeekStart.Equal(b.Week.WeekStart) {
			return a.Week.WeekStart.Before(b.Week.WeekStart)
		}
		if a.ProductGroup != b.ProductGroup {
			return a.ProductGroup < b.ProductGroup
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Direction < b.Direction
	})
	return out, stats
}
