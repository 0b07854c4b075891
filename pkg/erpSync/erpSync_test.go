package erpSync

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/logger"
	"github.com/zsmith-jtec/AFKPI/internal/metrics"
	"github.com/zsmith-jtec/AFKPI/internal/tests"
	"github.com/zsmith-jtec/AFKPI/pkg/clients/erp"
	"github.com/zsmith-jtec/AFKPI/pkg/dimensions"
	"github.com/zsmith-jtec/AFKPI/pkg/eventBus"
	"github.com/zsmith-jtec/AFKPI/pkg/eventBus/eventBusTypes"
	"github.com/zsmith-jtec/AFKPI/pkg/facts"
	"github.com/zsmith-jtec/AFKPI/pkg/loader"
	"github.com/zsmith-jtec/AFKPI/pkg/mappings"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	pgStorage "github.com/zsmith-jtec/AFKPI/pkg/storage/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeSource struct {
	mu      sync.Mutex
	records map[string][]map[string]interface{}
	errs    map[string]error
	queries []erp.Query
}

func (f *fakeSource) Query(ctx context.Context, q erp.Query) ([]map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err, ok := f.errs[q.Baq]; ok {
		return nil, &erp.UpstreamSourceError{Source: q.Baq, Err: err}
	}
	return f.records[q.Baq], nil
}

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
	cfg.ErpConfig.SkipJobPrefixes = []string{"UF"}

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

	dbname, _, grm, err := postgres.GetTestPostgresDatabase(cfg.DatabaseConfig, l)
	if err != nil {
		return dbname, nil, nil, nil, err
	}
	return dbname, grm, l, cfg, nil
}

func Test_Sources(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ErpConfig.LookbackDays = 30
	cfg.ErpConfig.SkipJobPrefixes = []string{"UF"}
	l, _ := logger.NewLogger(&logger.LoggerConfig{})

	s := NewErpSync(&fakeSource{}, nil, nil, nil, nil, l, cfg)
	now := time.Date(2025, 3, 31, 15, 0, 0, 0, time.UTC)
	sources := s.Sources(now)

	require.Len(t, sources, 3)
	assert.Equal(t, normalizer.Kind_Jobs, sources[0].Kind)
	assert.Equal(t, "JobHead_StartDate ge 2025-03-01T00:00:00Z", sources[0].Query.Filter)
	assert.Equal(t, []string{"UF"}, sources[0].Options.SkipJobPrefixes)
	assert.Equal(t, Baq_Labor, sources[1].Query.Baq)
	assert.Equal(t, "LaborDtl_PayrollDate ge 2025-03-01T00:00:00Z", sources[1].Query.Filter)
	assert.Equal(t, config.RevenueDirection_Outbound, sources[2].Options.ForceRevenueDirection)

	cfg.ErpConfig.LookbackDays = 0
	assert.Equal(t, "", s.Sources(now)[2].Query.Filter)
}

func Test_Sync(t *testing.T) {
	if !tests.PostgresTestsEnabled() {
		t.Skip("Skipping postgres test, AFKPI_DATABASE_HOST not set")
	}

	dbName, grm, l, cfg, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	eb := eventBus.NewEventBus(l)
	consumer := &eventBusTypes.Consumer{
		Id:      "erpSyncTest",
		Channel: make(chan *eventBusTypes.Event, 100),
		Context: context.Background(),
	}
	eb.Subscribe(consumer)

	auditStore := pgStorage.NewPostgresAuditStore(grm, l, cfg)
	ld := loader.NewLoader(
		grm,
		dimensions.NewResolver(grm, nil, l, cfg),
		facts.NewUpserter(grm, l),
		auditStore,
		mappings.NewRateTable(nil),
		eb,
		metrics.NewNoopMetricsSink(),
		l,
		cfg,
	)

	src := &fakeSource{
		records: map[string][]map[string]interface{}{
			Baq_Jobs: {
				{"JobHead_JobNum": "J1", "JobHead_ProdCode": "IPS", "JobHead_PartNum": "P-1", "JobHead_JobClosed": false},
				{"JobHead_JobNum": "UF7", "JobHead_ProdCode": "IPS"},
			},
			Baq_Labor: {
				{"LaborDtl_JobNum": "J1", "LaborDtl_PayrollDate": "2025-01-07T00:00:00-06:00", "LaborDtl_LaborHrs": 8.0, "LaborDtl_BurdenHrs": 8.0},
			},
			Baq_Revenue: {
				{"ShipHead_ShipDate": "2025-01-08T00:00:00", "ShipHead_PackNum": 901.0, "ProdGrup_Description": "IPS", "Calculated_Amount": 1200.5},
			},
		},
		errs: map[string]error{
			Baq_Revenue: errors.New("connection refused"),
		},
	}
	s := NewErpSync(src, ld, auditStore, eb, metrics.NewNoopMetricsSink(), l, cfg)

	drain := func() []*eventBusTypes.Event {
		events := make([]*eventBusTypes.Event, 0)
		for {
			select {
			case e := <-consumer.Channel:
				events = append(events, e)
			default:
				return events
			}
		}
	}

	t.Run("A failing source does not undo the others", func(t *testing.T) {
		res, err := s.Sync(context.Background())
		require.Nil(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Len(t, src.queries, 3)

		jobs := res.Sources[0]
		require.NotNil(t, jobs.Result)
		assert.Equal(t, 1, jobs.Result.RowsProcessed)
		assert.Equal(t, 1, jobs.Result.RowsDropped)
		assert.Equal(t, Actor, jobs.Result.Actor)

		labor := res.Sources[1]
		require.NotNil(t, labor.Result)
		assert.Equal(t, 1, labor.Result.RowsProcessed)

		revenue := res.Sources[2]
		assert.Nil(t, revenue.Result)
		var upstream *erp.UpstreamSourceError
		assert.True(t, errors.As(revenue.Err, &upstream))
		assert.Contains(t, revenue.Error, "connection refused")

		var count int64
		grm.Model(&storage.Job{}).Count(&count)
		assert.Equal(t, int64(1), count)
		grm.Model(&storage.CostFact{}).Count(&count)
		assert.Equal(t, int64(1), count)

		entry := &storage.AuditEntry{}
		require.Nil(t, grm.Where("action = ?", storage.AuditAction_ErpSync).First(entry).Error)
		assert.Equal(t, Actor, entry.Actor)

		events := drain()
		require.Len(t, events, 3)
		last := events[2]
		assert.Equal(t, eventBusTypes.Event_ErpSyncCompleted, last.Name)
		assert.Equal(t, []string{"revenue"}, last.Data.(*eventBusTypes.ErpSyncCompletedData).Failed)
	})

	t.Run("Shipped revenue loads as outbound", func(t *testing.T) {
		delete(src.errs, Baq_Revenue)

		res, err := s.Sync(context.Background())
		require.Nil(t, err)
		assert.Equal(t, 0, res.Failed)
		require.NotNil(t, res.Sources[2].Result)
		assert.Equal(t, 1, res.Sources[2].Result.RowsProcessed)

		fact := &storage.RevenueFact{}
		require.Nil(t, grm.First(fact).Error)
		assert.Equal(t, storage.Direction_Outbound, fact.Direction)
		assert.Equal(t, "1200.50", fact.Revenue.StringFixed(2))
		assert.Equal(t, 1, fact.OrderCount)

		// the re-sync replaced the labor fact instead of adding one
		var count int64
		grm.Model(&storage.CostFact{}).Count(&count)
		assert.Equal(t, int64(1), count)
		drain()
	})

	t.Run("Empty sources are not failures", func(t *testing.T) {
		src.records = map[string][]map[string]interface{}{}

		res, err := s.Sync(context.Background())
		require.Nil(t, err)
		assert.Equal(t, 0, res.Failed)
		for _, sr := range res.Sources {
			assert.Nil(t, sr.Result)
			assert.Equal(t, 0, sr.Records)
		}
		drain()
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Sync(ctx)
		assert.Error(t, err)
	})

	t.Cleanup(func() {
		postgres.TeardownTestDatabase(dbName, cfg.DatabaseConfig, grm, l)
	})
}
