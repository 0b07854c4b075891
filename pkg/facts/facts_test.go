package facts

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/logger"
	"github.com/zsmith-jtec/AFKPI/internal/tests"
	"github.com/zsmith-jtec/AFKPI/pkg/dimensions"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"github.com/zsmith-jtec/AFKPI/pkg/weeks"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup() (
	string,
	*gorm.DB,
	*zap.Logger,
	*config.Config,
	error,
) {
	cfg := config.NewConfig()
	cfg.Debug = os.Getenv("AFKPI_DEBUG") == "true"
	cfg.DatabaseConfig = *tests.GetDbConfigFromEnv()

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

	dbname, _, grm, err := postgres.GetTestPostgresDatabase(cfg.DatabaseConfig, l)
	if err != nil {
		return dbname, nil, nil, nil, err
	}
	return dbname, grm, l, cfg, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func Test_Facts(t *testing.T) {
	if !tests.PostgresTestsEnabled() {
		t.Skip("Skipping postgres test, AFKPI_DATABASE_HOST not set")
	}

	dbName, grm, l, cfg, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	resolver := dimensions.NewResolver(grm, nil, l, cfg)
	upserter := NewUpserter(grm, l)

	w, _ := weeks.Resolve("2025-01-06")
	week, _, err := resolver.FindOrCreateWeek(nil, w)
	require.Nil(t, err)
	product, _, err := resolver.FindOrCreateProduct(nil, dimensions.ProductInput{ProductGroup: "IPS", Category: "Cart"})
	require.Nil(t, err)
	job, _, err := resolver.FindOrCreateJob(nil, dimensions.JobInput{JobNum: "J1"})
	require.Nil(t, err)

	t.Run("Revenue is replaced on re-upload", func(t *testing.T) {
		f, inserted, err := upserter.UpsertRevenue(nil, week.Id, product.Id, storage.Direction_Inbound, d("5000"), 1)
		require.Nil(t, err)
		assert.True(t, inserted)
		assert.NotZero(t, f.Id)

		again, inserted, err := upserter.UpsertRevenue(nil, week.Id, product.Id, storage.Direction_Inbound, d("4500.50"), 2)
		require.Nil(t, err)
		assert.False(t, inserted)
		assert.Equal(t, f.Id, again.Id)
		assert.Equal(t, "4500.50", again.Revenue.StringFixed(2))
		assert.Equal(t, 2, again.OrderCount)

		_, inserted, err = upserter.UpsertRevenue(nil, week.Id, product.Id, storage.Direction_Outbound, d("3000"), 1)
		require.Nil(t, err)
		assert.True(t, inserted)

		var count int64
		grm.Model(&storage.RevenueFact{}).Count(&count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Invalid direction", func(t *testing.T) {
		_, _, err := upserter.UpsertRevenue(nil, week.Id, product.Id, storage.Direction("SIDEWAYS"), d("1"), 1)
		assert.Error(t, err)
	})

	t.Run("Labor and material share one cost fact", func(t *testing.T) {
		_, inserted, err := upserter.UpsertLabor(nil, week.Id, job.Id, LaborMeasures{
			LaborHours:  d("40"),
			BurdenHours: d("40"),
			DirectLabor: d("1800"),
			Burden:      d("1120"),
		})
		require.Nil(t, err)
		assert.True(t, inserted)

		f, inserted, err := upserter.UpsertMaterial(nil, week.Id, job.Id, d("500"))
		require.Nil(t, err)
		assert.False(t, inserted)
		assert.Equal(t, "1800.00", f.DirectLabor.StringFixed(2))
		assert.Equal(t, "1120.00", f.Burden.StringFixed(2))
		assert.Equal(t, "500.00", f.MaterialCost.StringFixed(2))
		assert.Equal(t, "3420.00", f.TotalCost().StringFixed(2))

		// a labor re-upload keeps the material cost
		f, _, err = upserter.UpsertLabor(nil, week.Id, job.Id, LaborMeasures{
			LaborHours:  d("10"),
			BurdenHours: d("0"),
			DirectLabor: d("450"),
			Burden:      d("0"),
		})
		require.Nil(t, err)
		assert.Equal(t, "450.00", f.DirectLabor.StringFixed(2))
		assert.Equal(t, "500.00", f.MaterialCost.StringFixed(2))

		var count int64
		grm.Model(&storage.CostFact{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Writes roll back with the outer transaction", func(t *testing.T) {
		tx := grm.Begin()
		_, _, err := upserter.UpsertMaterial(tx, week.Id, job.Id, d("999"))
		require.Nil(t, err)
		tx.Rollback()

		stored := &storage.CostFact{}
		require.Nil(t, grm.Where("week_id = ? and job_id = ?", week.Id, job.Id).First(stored).Error)
		assert.Equal(t, "500.00", stored.MaterialCost.StringFixed(2))
	})

	t.Run("A key inserted by a concurrent batch counts as an update", func(t *testing.T) {
		other, _, err := resolver.FindOrCreateProduct(nil, dimensions.ProductInput{ProductGroup: "IPS", Category: "Tugger"})
		require.Nil(t, err)

		f, inserted, err := insertOrMerge(grm, "uniq_fact_revenue_week_product_direction", revenueColumns, &storage.RevenueFact{
			WeekId:     week.Id,
			ProductId:  other.Id,
			Direction:  storage.Direction_Inbound,
			Revenue:    d("100"),
			OrderCount: 1,
		}, revenueTimestamps)
		require.Nil(t, err)
		assert.True(t, inserted)

		// the read in upsert missed this row, so the insert lands on the conflict
		merged, inserted, err := insertOrMerge(grm, "uniq_fact_revenue_week_product_direction", revenueColumns, &storage.RevenueFact{
			WeekId:     week.Id,
			ProductId:  other.Id,
			Direction:  storage.Direction_Inbound,
			Revenue:    d("250"),
			OrderCount: 3,
		}, revenueTimestamps)
		require.Nil(t, err)
		assert.False(t, inserted)
		assert.Equal(t, f.Id, merged.Id)
		assert.Equal(t, "250.00", merged.Revenue.StringFixed(2))
		assert.Equal(t, 3, merged.OrderCount)
	})

	t.Cleanup(func() {
		postgres.TeardownTestDatabase(dbName, cfg.DatabaseConfig, grm, l)
	})
}
