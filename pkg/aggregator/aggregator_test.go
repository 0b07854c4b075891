package aggregator

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
)

func normalize(t *testing.T, kind normalizer.Kind, columns []string, records [][]string) *normalizer.Normalized {
	n, err := normalizer.Normalize(kind, tabular.NewTable(columns, records))
	require.Nil(t, err)
	return n
}

func reversed(records [][]string) [][]string {
	out := make([][]string, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i])
	}
	return out
}

type staticRates map[string][2]string

func (s staticRates) RatesFor(group string) (decimal.Decimal, decimal.Decimal, bool) {
	r, ok := s[group]
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return decimal.RequireFromString(r[0]), decimal.RequireFromString(r[1]), true
}

func Test_ParseDecimal(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"5000", "5000.00", true},
		{" $1,234.50 ", "1234.50", true},
		{"(100)", "-100.00", true},
		{"($12.5)", "-12.50", true},
		{"-7.25", "-7.25", true},
		{"", "0.00", true},
		{"abc", "0.00", false},
		{"(-5)", "0.00", false},
		{"12..5", "0.00", false},
	}
	for _, c := range cases {
		d, ok := ParseDecimal(c.raw)
		assert.Equal(t, c.ok, ok, c.raw)
		assert.Equal(t, c.want, d.StringFixed(2), c.raw)
	}
}

func Test_ParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "Y"} {
		b, ok := ParseBool(v)
		assert.True(t, ok, v)
		assert.True(t, b, v)
	}
	for _, v := range []string{"false", "0", "", "No"} {
		b, ok := ParseBool(v)
		assert.True(t, ok, v)
		assert.False(t, b, v)
	}
	_, ok := ParseBool("maybe")
	assert.False(t, ok)
}

var revenueColumns = []string{"OrderNum", "OrderDate", "ProdCode", "PartClass", "DocExtPrice", "OpenOrder"}

func revenueRows(rows []*RevenueRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d", r.Week.Key(), r.ProductLine, r.ProductGroup, r.Category, r.Direction, r.Revenue.StringFixed(2), r.OrderCount))
	}
	return out
}

func Test_AggregateRevenue(t *testing.T) {
	t.Run("Open and shipped orders split by direction", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Revenue, revenueColumns, [][]string{
			{"1001", "2025-01-06", "IPS", "Cart", "5000", "true"},
			{"1002", "2025-01-08", "IPS", "Cart", "3000", "false"},
		})

		rows, stats := AggregateRevenue(n, RevenueOptions{})
		require.Len(t, rows, 2)

		assert.Equal(t, config.RevenueDirection_Inbound, rows[0].Direction)
		assert.Equal(t, "5000.00", rows[0].Revenue.StringFixed(2))
		assert.Equal(t, 1, rows[0].OrderCount)
		assert.Equal(t, config.RevenueDirection_Outbound, rows[1].Direction)
		assert.Equal(t, "3000.00", rows[1].Revenue.StringFixed(2))
		assert.Equal(t, 1, rows[1].OrderCount)

		for _, r := range rows {
			assert.Equal(t, "2025-01-06", r.Week.Key())
			assert.Equal(t, "IPS", r.ProductGroup)
			assert.Equal(t, "Cart", r.Category)
			assert.Equal(t, config.DefaultProductLine, r.ProductLine)
		}
		assert.Equal(t, 2, stats.RowsIn)
		assert.Equal(t, 0, stats.RowsDropped)
		assert.Equal(t, 0, stats.RowsCoerced)
	})

	t.Run("Order count is distinct per group", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Revenue, revenueColumns, [][]string{
			{"1001", "2025-01-06", "IPS", "Cart", "100", "false"},
			{"1001", "2025-01-07", "IPS", "Cart", "200", "false"},
			{"1003", "2025-01-07", "IPS", "Cart", "300", "false"},
			{"", "2025-01-07", "IPS", "Cart", "400", "false"},
		})

		rows, _ := AggregateRevenue(n, RevenueOptions{})
		require.Len(t, rows, 1)
		assert.Equal(t, "1000.00", rows[0].Revenue.StringFixed(2))
		assert.Equal(t, 2, rows[0].OrderCount)
	})

	t.Run("Rows without an order number are not counted as orders", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Revenue, revenueColumns, [][]string{
			{"", "2025-01-06", "IPS", "Cart", "100", "false"},
			{"", "2025-01-07", "IPS", "Cart", "200", "false"},
			{"", "2025-01-08", "IPS", "Cart", "300", "false"},
		})

		rows, _ := AggregateRevenue(n, RevenueOptions{})
		require.Len(t, rows, 1)
		assert.Equal(t, "600.00", rows[0].Revenue.StringFixed(2))
		assert.Equal(t, 0, rows[0].OrderCount)
	})

	t.Run("Unresolvable dates are dropped and bad prices become zero", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Revenue, revenueColumns, [][]string{
			{"1001", "not a date", "IPS", "Cart", "100", "false"},
			{"1002", "2025-01-06", "IPS", "Cart", "N/A", "false"},
			{"1003", "2025-01-06", "IPS", "Cart", "$1,250.50", "false"},
		})

		rows, stats := AggregateRevenue(n, RevenueOptions{})
		require.Len(t, rows, 1)
		assert.Equal(t, "1250.50", rows[0].Revenue.StringFixed(2))
		assert.Equal(t, 2, rows[0].OrderCount)

		assert.Equal(t, 3, stats.RowsIn)
		assert.Equal(t, 1, stats.RowsDropped)
		assert.Equal(t, 1, stats.RowsCoerced)
		require.Len(t, stats.Warnings, 2)
		assert.Equal(t, 1, stats.Warnings[0].Row)
		assert.Equal(t, normalizer.Col_DocExtPrice, stats.Warnings[1].Column)
		assert.Contains(t, stats.Warnings[1].Error(), "N/A")
	})

	t.Run("Ship date is used when the order date is empty", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Revenue, []string{"OrderDate", "ShipDate", "DocExtPrice"}, [][]string{
			{"", "2025-12-17T00:00:00-06:00", "10"},
		})

		rows, _ := AggregateRevenue(n, RevenueOptions{})
		require.Len(t, rows, 1)
		assert.Equal(t, "2025-12-15", rows[0].Week.Key())
		assert.Equal(t, UnknownProductGroup, rows[0].ProductGroup)
		assert.Equal(t, UnknownCategory, rows[0].Category)
		assert.Equal(t, config.RevenueDirection_Outbound, rows[0].Direction)
	})

	t.Run("Direction options", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Revenue, revenueColumns, [][]string{
			{"1001", "2025-01-06", "IPS", "Cart", "5000", "true"},
			{"1002", "2025-01-06", "IPS", "Cart", "3000", ""},
		})

		rows, _ := AggregateRevenue(n, RevenueOptions{ForceDirection: config.RevenueDirection_Outbound})
		require.Len(t, rows, 1)
		assert.Equal(t, "8000.00", rows[0].Revenue.StringFixed(2))

		rows, _ = AggregateRevenue(n, RevenueOptions{DefaultDirection: config.RevenueDirection_Inbound})
		require.Len(t, rows, 1)
		assert.Equal(t, config.RevenueDirection_Inbound, rows[0].Direction)
		assert.Equal(t, 2, rows[0].OrderCount)
	})

	t.Run("Product line comes from the export when present", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Revenue, []string{"OrderDate", "ProdLine", "ProdCode", "DocExtPrice"}, [][]string{
			{"2025-01-06", "", "Conveyors", "1"},
			{"2025-01-06", "Material Handling", "Conveyors", "1"},
		})

		rows, _ := AggregateRevenue(n, RevenueOptions{DefaultProductLine: "OTHER"})
		require.Len(t, rows, 1)
		assert.Equal(t, "Material Handling", rows[0].ProductLine)
	})

	t.Run("Input order does not change the output", func(t *testing.T) {
		records := [][]string{
			{"1001", "2025-01-06", "IPS", "Cart", "0.10", "true"},
			{"1002", "2025-01-13", "IPS", "Cart", "0.20", "false"},
			{"1003", "2025-01-06", "IPS", "Tote", "0.30", "false"},
			{"1004", "2025-01-07", "IPS", "Cart", "0.40", "true"},
			{"1005", "2024-12-31", "AMR", "Base", "0.50", "false"},
		}
		a, _ := AggregateRevenue(normalize(t, normalizer.Kind_Revenue, revenueColumns, records), RevenueOptions{})
		b, _ := AggregateRevenue(normalize(t, normalizer.Kind_Revenue, revenueColumns, reversed(records)), RevenueOptions{})

		assert.Len(t, a, 4)
		assert.Equal(t, revenueRows(a), revenueRows(b))
		assert.Equal(t, "0.50", a[1].Revenue.StringFixed(2))
	})
}

var laborColumns = []string{"LaborDtl_JobNum", "LaborDtl_ClockInDate", "LaborDtl_ResourceGrpID", "LaborDtl_LaborHrs", "LaborDtl_BurdenHrs"}

func Test_AggregateLabor(t *testing.T) {
	t.Run("Default rates", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Labor, laborColumns, [][]string{
			{"J1", "2025-01-06", "", "24", "24"},
			{"J1", "2025-01-08", "", "16", "16"},
		})

		rows, stats := AggregateLabor(n, LaborOptions{})
		require.Len(t, rows, 1)
		r := rows[0]
		assert.Equal(t, "J1", r.JobNum)
		assert.Equal(t, "40.00", r.LaborHours.StringFixed(2))
		assert.Equal(t, "40.00", r.BurdenHours.StringFixed(2))
		assert.Equal(t, "1800.00", r.DirectLabor.StringFixed(2))
		assert.Equal(t, "1120.00", r.Burden.StringFixed(2))
		assert.Equal(t, 2, stats.RowsIn)
	})

	t.Run("Resource group rates override defaults", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Labor, laborColumns, [][]string{
			{"J1", "2025-01-06", "WELD", "10", "10"},
			{"J1", "2025-01-06", "ASSY", "10", "5"},
		})

		rows, _ := AggregateLabor(n, LaborOptions{
			Rates:             staticRates{"WELD": {"60.00", "40.00"}},
			DefaultLaborRate:  decimal.RequireFromString("50.00"),
			DefaultBurdenRate: decimal.RequireFromString("30.00"),
		})
		require.Len(t, rows, 1)
		assert.Equal(t, "1100.00", rows[0].DirectLabor.StringFixed(2))
		assert.Equal(t, "550.00", rows[0].Burden.StringFixed(2))
	})

	t.Run("Payroll date wins and rows without job or date are dropped", func(t *testing.T) {
		n := normalize(t, normalizer.Kind_Labor,
			[]string{"LaborDtl_JobNum", "LaborDtl_PayrollDate", "LaborDtl_ClockInDate", "LaborDtl_LaborHrs"},
			[][]string{
				{"J1", "2025-01-13", "2025-01-10", "8"},
				{"J1", "", "2025-01-10", "abc"},
				{"", "2025-01-13", "", "8"},
				{"J2", "", "", "8"},
			})

		rows, stats := AggregateLabor(n, LaborOptions{})
		require.Len(t, rows, 2)
		assert.Equal(t, "2025-01-06", rows[0].Week.Key())
		assert.Equal(t, "0.00", rows[0].LaborHours.StringFixed(2))
		assert.Equal(t, "2025-01-13", rows[1].Week.Key())
		assert.Equal(t, "8.00", rows[1].LaborHours.StringFixed(2))
		assert.Equal(t, "360.00", rows[1].DirectLabor.StringFixed(2))
		assert.Equal(t, "0.00", rows[1].Burden.StringFixed(2))

		assert.Equal(t, 4, stats.RowsIn)
		assert.Equal(t, 2, stats.RowsDropped)
		assert.Equal(t, 1, stats.RowsCoerced)
	})
}

func Test_AggregateMaterial(t *testing.T) {
	n := normalize(t, normalizer.Kind_Material, []string{"JobMtl_JobNum", "JobMtl_IssueDate", "JobMtl_TranDate", "JobMtl_ExtCost"}, [][]string{
		{"J1", "2025-01-06", "", "300"},
		{"J1", "", "01/08/2025", "200"},
		{"J2", "2025-01-06", "", "(25.50)"},
	})

	rows, stats := AggregateMaterial(n)
	require.Len(t, rows, 2)
	assert.Equal(t, "J1", rows[0].JobNum)
	assert.Equal(t, "500.00", rows[0].MaterialCost.StringFixed(2))
	assert.Equal(t, "J2", rows[1].JobNum)
	assert.Equal(t, "-25.50", rows[1].MaterialCost.StringFixed(2))
	assert.Equal(t, 0, stats.RowsDropped)
}

func Test_AggregateJobs(t *testing.T) {
	n := normalize(t, normalizer.Kind_Jobs,
		[]string{"JobHead_JobNum", "JobHead_OrderNum", "JobHead_PartNum", "JobHead_ProdCode", "Part_PartClass", "JobHead_JobClosed"},
		[][]string{
			{"J2", "0", "P-2", "", "", ""},
			{"J1", "", "P-1", "IPS", "", "true"},
			{"J1", "5001", "P-9", "AMR", "Cart", "false"},
			{"", "5002", "", "", "", ""},
			{"J3", "5003", "", "IPS", "Tote", "perhaps"},
		})

	rows, stats := AggregateJobs(n)
	require.Len(t, rows, 3)

	j1 := rows[0]
	assert.Equal(t, "J1", j1.JobNum)
	assert.Equal(t, "5001", j1.SalesOrderNum)
	assert.Equal(t, "P-1", j1.PartNum)
	assert.Equal(t, "IPS", j1.ProductGroup)
	assert.Equal(t, "Cart", j1.Category)
	require.NotNil(t, j1.JobClosed)
	assert.True(t, *j1.JobClosed)

	j2 := rows[1]
	assert.Equal(t, "", j2.SalesOrderNum)
	assert.Equal(t, "", j2.ProductGroup)
	assert.Equal(t, "", j2.Category)
	assert.Nil(t, j2.JobClosed)

	j3 := rows[2]
	assert.Equal(t, "Tote", j3.Category)
	assert.Nil(t, j3.JobClosed)

	assert.Equal(t, 5, stats.RowsIn)
	assert.Equal(t, 1, stats.RowsDropped)
	assert.Equal(t, 1, stats.RowsCoerced)
}
