package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/logger"
	"github.com/zsmith-jtec/AFKPI/internal/metrics"
	"github.com/zsmith-jtec/AFKPI/pkg/dimensions"
	"github.com/zsmith-jtec/AFKPI/pkg/eventBus"
	"github.com/zsmith-jtec/AFKPI/pkg/facts"
	"github.com/zsmith-jtec/AFKPI/pkg/loader"
	"github.com/zsmith-jtec/AFKPI/pkg/mappings"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres/migrations"
	pgStorage "github.com/zsmith-jtec/AFKPI/pkg/storage/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{
		Debug:      cfg.Debug,
		File:       cfg.LogConfig.File,
		MaxSizeMb:  cfg.LogConfig.MaxSizeMb,
		MaxBackups: cfg.LogConfig.MaxBackups,
		MaxAgeDays: cfg.LogConfig.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

func newMetricsSink(cfg *config.Config, l *zap.Logger) (*metrics.MetricsSink, error) {
	clients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to setup metrics sink: %w", err)
	}
	return metrics.NewMetricsSink(&metrics.MetricsSinkConfig{
		DefaultLabels: metrics.DefaultLabelsFromConfig(cfg),
	}, clients, l)
}

// openDatabase connects to the configured database, creating it when it does
// not exist yet, and optionally runs all migrations.
func openDatabase(cfg *config.Config, l *zap.Logger, migrate bool) (*gorm.DB, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}

	pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
	pgConfig.CreateDbIfNotExists = true

	pg, err := postgres.NewPostgres(pgConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to setup postgres connection: %w", err)
	}

	grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return nil, fmt.Errorf("failed to create gorm instance: %w", err)
	}

	if migrate {
		migrator := migrations.NewMigrator(pg.Db, grm, l)
		if err = migrator.MigrateAll(); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return grm, nil
}

func closeDatabase(grm *gorm.DB) {
	if rawDb, err := grm.DB(); err == nil {
		_ = rawDb.Close()
	}
}

// etlApp holds everything a command needs to load data.
type etlApp struct {
	db          *gorm.DB
	auditStore  *pgStorage.PostgresAuditStore
	eventBus    *eventBus.EventBus
	metricsSink *metrics.MetricsSink
	loader      *loader.Loader
	logger      *zap.Logger
}

func newEtlApp(cfg *config.Config, l *zap.Logger) (*etlApp, error) {
	if err := cfg.ValidateEtl(); err != nil {
		return nil, err
	}

	rates, err := mappings.LoadRateTable(cfg.EtlConfig.RatesFile)
	if err != nil {
		return nil, err
	}
	margins, err := mappings.LoadMarginTable(cfg.EtlConfig.MarginsFile, "")
	if err != nil {
		return nil, err
	}
	l.Sugar().Debugw("Loaded mapping tables",
		zap.Int("rates", rates.Len()),
		zap.Int("margins", margins.Len()),
	)

	ms, err := newMetricsSink(cfg, l)
	if err != nil {
		return nil, err
	}

	grm, err := openDatabase(cfg, l, true)
	if err != nil {
		return nil, err
	}

	auditStore := pgStorage.NewPostgresAuditStore(grm, l, cfg)
	eb := eventBus.NewEventBus(l)

	ld := loader.NewLoader(
		grm,
		dimensions.NewResolver(grm, margins, l, cfg),
		facts.NewUpserter(grm, l),
		auditStore,
		rates,
		eb,
		ms,
		l,
		cfg,
	)

	return &etlApp{
		db:          grm,
		auditStore:  auditStore,
		eventBus:    eb,
		metricsSink: ms,
		loader:      ld,
		logger:      l,
	}, nil
}

func (a *etlApp) Close() {
	closeDatabase(a.db)
}

func printJson(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
