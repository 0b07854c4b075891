package dimensions

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/logger"
	"github.com/zsmith-jtec/AFKPI/internal/tests"
	"github.com/zsmith-jtec/AFKPI/pkg/mappings"
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

func Test_DimensionRaceError(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&DimensionRaceError{Dimension: "job", Key: "J1", Err: cause})

	var race *DimensionRaceError
	assert.True(t, errors.As(err, &race))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "job 'J1'")
}

func Test_Dimensions(t *testing.T) {
	if !tests.PostgresTestsEnabled() {
		t.Skip("Skipping postgres test, AFKPI_DATABASE_HOST not set")
	}

	dbName, grm, l, cfg, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	targets := mappings.NewMarginTable(map[mappings.MarginKey]decimal.Decimal{
		{ProductGroup: "IPS", Category: "Cart"}: decimal.RequireFromString("0.30"),
	})
	resolver := NewResolver(grm, targets, l, cfg)

	t.Run("Weeks", func(t *testing.T) {
		w, _ := weeks.Resolve("2025-01-08")

		first, created, err := resolver.FindOrCreateWeek(nil, w)
		require.Nil(t, err)
		assert.True(t, created)
		assert.Equal(t, "2025-01-06", first.WeekStart.Format(weeks.DateLayout))
		assert.Equal(t, "2025-01-12", first.WeekEnd.Format(weeks.DateLayout))
		assert.Equal(t, 2025, first.IsoYear)
		assert.Equal(t, 2, first.IsoWeek)

		again, created, err := resolver.FindOrCreateWeek(nil, w)
		require.Nil(t, err)
		assert.False(t, created)
		assert.Equal(t, first.Id, again.Id)

		var count int64
		grm.Model(&storage.Week{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Products take targets from the lookup and are never overwritten", func(t *testing.T) {
		p, created, err := resolver.FindOrCreateProduct(nil, ProductInput{ProductGroup: "IPS", Category: "Cart"})
		require.Nil(t, err)
		assert.True(t, created)
		assert.Equal(t, config.DefaultProductLine, p.ProductLine)
		require.True(t, p.TargetMargin.Valid)
		assert.Equal(t, "0.3000", p.TargetMargin.Decimal.StringFixed(4))

		other := decimal.RequireFromString("0.10")
		again, created, err := resolver.FindOrCreateProduct(nil, ProductInput{ProductLine: "AMR", ProductGroup: "IPS", Category: "Cart", TargetMargin: &other})
		require.Nil(t, err)
		assert.False(t, created)
		assert.Equal(t, p.Id, again.Id)
		assert.Equal(t, config.DefaultProductLine, again.ProductLine)
		assert.Equal(t, "0.3000", again.TargetMargin.Decimal.StringFixed(4))
	})

	t.Run("Products get a missing target back-filled", func(t *testing.T) {
		p, _, err := resolver.FindOrCreateProduct(nil, ProductInput{ProductGroup: "IPS", Category: "Tote"})
		require.Nil(t, err)
		assert.False(t, p.TargetMargin.Valid)

		target := decimal.RequireFromString("0.35")
		p, created, err := resolver.FindOrCreateProduct(nil, ProductInput{ProductGroup: "IPS", Category: "Tote", TargetMargin: &target})
		require.Nil(t, err)
		assert.False(t, created)
		assert.Equal(t, "0.3500", p.TargetMargin.Decimal.StringFixed(4))

		stored := &storage.Product{}
		require.Nil(t, grm.First(stored, p.Id).Error)
		assert.Equal(t, "0.3500", stored.TargetMargin.Decimal.StringFixed(4))
	})

	t.Run("Products need a group and category", func(t *testing.T) {
		_, _, err := resolver.FindOrCreateProduct(nil, ProductInput{ProductGroup: "IPS"})
		assert.Error(t, err)
	})

	t.Run("Jobs only fill empty fields", func(t *testing.T) {
		open := false
		closed := true

		j, created, err := resolver.FindOrCreateJob(nil, JobInput{JobNum: "J100", JobClosed: &open})
		require.Nil(t, err)
		assert.True(t, created)
		assert.Nil(t, j.SalesOrderNum)
		assert.False(t, j.JobClosed)

		product, _, err := resolver.FindOrCreateProduct(nil, ProductInput{ProductGroup: "IPS", Category: "Cart"})
		require.Nil(t, err)

		j, created, err = resolver.FindOrCreateJob(nil, JobInput{JobNum: "J100", SalesOrderNum: "5001", PartNum: "P-1", ProductId: &product.Id, JobClosed: &closed})
		require.Nil(t, err)
		assert.False(t, created)
		require.NotNil(t, j.SalesOrderNum)
		assert.Equal(t, "5001", *j.SalesOrderNum)
		assert.True(t, j.JobClosed)

		j, _, err = resolver.FindOrCreateJob(nil, JobInput{JobNum: "J100", SalesOrderNum: "9999", PartNum: "P-2", JobClosed: &open})
		require.Nil(t, err)
		assert.Equal(t, "5001", *j.SalesOrderNum)
		assert.Equal(t, "P-1", *j.PartNum)
		assert.True(t, j.JobClosed)

		stored := &storage.Job{}
		require.Nil(t, grm.Where("job_num = ?", "J100").First(stored).Error)
		assert.Equal(t, "5001", *stored.SalesOrderNum)
		assert.Equal(t, "P-1", *stored.PartNum)
		require.NotNil(t, stored.ProductId)
		assert.Equal(t, product.Id, *stored.ProductId)
		assert.True(t, stored.JobClosed)
	})

	t.Run("Concurrent creation yields one row", func(t *testing.T) {
		const workers = 8
		ids := make([]uint64, workers)
		errs := make([]error, workers)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				j, _, err := resolver.FindOrCreateJob(nil, JobInput{JobNum: "J-RACE", PartNum: "P-RACE"})
				errs[i] = err
				if j != nil {
					ids[i] = j.Id
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			assert.Nil(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}

		var count int64
		grm.Model(&storage.Job{}).Where("job_num = ?", "J-RACE").Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Cleanup(func() {
		postgres.TeardownTestDatabase(dbName, cfg.DatabaseConfig, grm, l)
	})
}
