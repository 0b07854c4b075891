// Package erpSync pulls jobs, labor and shipped revenue from the ERP
// connector and loads them through the regular upload path.
package erpSync

import (
	"context"
	"fmt"
	"time"

	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/metrics"
	"github.com/zsmith-jtec/AFKPI/internal/metrics/metricsTypes"
	"github.com/zsmith-jtec/AFKPI/pkg/clients/erp"
	"github.com/zsmith-jtec/AFKPI/pkg/eventBus/eventBusTypes"
	"github.com/zsmith-jtec/AFKPI/pkg/loader"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const Actor = "etl-erp"

const (
	Baq_Jobs    = "jt_zjobhead01"
	Baq_Labor   = "jt_zLaborDtl01"
	Baq_Revenue = "JtecGrossMargin"
)

type RecordSource interface {
	Query(ctx context.Context, q erp.Query) ([]map[string]interface{}, error)
}

type Source struct {
	Name    string
	Kind    normalizer.Kind
	Query   erp.Query
	Options *loader.LoadOptions
}

type SourceResult struct {
	Source  string             `json:"source"`
	Kind    normalizer.Kind    `json:"kind"`
	Records int                `json:"records"`
	Result  *loader.LoadResult `json:"result,omitempty"`
	Err     error              `json:"-"`
	Error   string             `json:"error,omitempty"`
}

type SyncResult struct {
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Sources    []*SourceResult `json:"sources"`
	Failed     int             `json:"failed"`
}

type ErpSync struct {
	client       RecordSource
	loader       *loader.Loader
	auditStore   storage.AuditStore
	eventBus     eventBusTypes.IEventBus
	metricsSink  *metrics.MetricsSink
	logger       *zap.Logger
	globalConfig *config.Config
}

func NewErpSync(
	client RecordSource,
	ld *loader.Loader,
	auditStore storage.AuditStore,
	eb eventBusTypes.IEventBus,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *ErpSync {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &ErpSync{
		client:       client,
		loader:       ld,
		auditStore:   auditStore,
		eventBus:     eb,
		metricsSink:  ms,
		logger:       l,
		globalConfig: cfg,
	}
}

// sinceFilter builds an OData "column ge <date>" filter for the configured
// lookback, or nothing when lookback is disabled.
func (s *ErpSync) sinceFilter(column string, now time.Time) string {
	days := s.globalConfig.ErpConfig.LookbackDays
	if days <= 0 {
		return ""
	}
	since := now.UTC().AddDate(0, 0, -days)
	return fmt.Sprintf("%s ge %sT00:00:00Z", column, since.Format("2006-01-02"))
}

// Sources lists the ERP sources in load order. Jobs go first so labor and
// revenue find their job and product rows already merged.
func (s *ErpSync) Sources(now time.Time) []*Source {
	return []*Source{
		{
			Name:  "jobs",
			Kind:  normalizer.Kind_Jobs,
			Query: erp.Query{Baq: Baq_Jobs, Filter: s.sinceFilter("JobHead_StartDate", now)},
			Options: &loader.LoadOptions{
				SkipJobPrefixes: s.globalConfig.ErpConfig.SkipJobPrefixes,
			},
		},
		{
			Name:    "labor",
			Kind:    normalizer.Kind_Labor,
			Query:   erp.Query{Baq: Baq_Labor, Filter: s.sinceFilter("LaborDtl_PayrollDate", now)},
			Options: &loader.LoadOptions{},
		},
		{
			Name:  "revenue",
			Kind:  normalizer.Kind_Revenue,
			Query: erp.Query{Baq: Baq_Revenue, Filter: s.sinceFilter("ShipHead_ShipDate", now)},
			// the gross margin BAQ reports shipments
			Options: &loader.LoadOptions{
				ForceRevenueDirection: config.RevenueDirection_Outbound,
			},
		},
	}
}

// Sync fetches every source concurrently, then loads them one at a time in
// order. A failing source is reported in its SourceResult and does not undo
// sources that already committed. The returned error is only set when ctx
// ends the pass early.
func (s *ErpSync) Sync(ctx context.Context) (*SyncResult, error) {
	now := time.Now()
	sources := s.Sources(now)
	result := &SyncResult{
		StartedAt: now.UTC(),
		Sources:   make([]*SourceResult, len(sources)),
	}

	records := make([][]map[string]interface{}, len(sources))
	for i, src := range sources {
		result.Sources[i] = &SourceResult{Source: src.Name, Kind: src.Kind}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			recs, err := s.client.Query(gctx, src.Query)
			if err != nil {
				result.Sources[i].Err = err
				return nil
			}
			records[i] = recs
			result.Sources[i].Records = len(recs)
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sr := result.Sources[i]
		if sr.Err != nil {
			continue
		}
		if len(records[i]) == 0 {
			s.logger.Sugar().Infow("No ERP records for source", zap.String("source", src.Name))
			continue
		}

		res, err := s.loader.Load(ctx, src.Kind, tabular.FromRecords(records[i], nil), Actor, src.Options)
		if err != nil {
			sr.Err = err
			continue
		}
		sr.Result = res
	}

	failed := make([]string, 0)
	names := make([]string, 0, len(sources))
	for _, sr := range result.Sources {
		names = append(names, sr.Source)
		if sr.Err != nil {
			sr.Error = sr.Err.Error()
			failed = append(failed, sr.Source)
			s.logger.Sugar().Errorw("ERP source failed",
				zap.String("source", sr.Source),
				zap.Error(sr.Err),
			)
		}
	}
	result.Failed = len(failed)
	result.FinishedAt = time.Now().UTC()

	if _, err := s.auditStore.InsertAuditEntry(nil, Actor, storage.AuditAction_ErpSync, "erp", s.auditDetails(result)); err != nil {
		s.logger.Sugar().Errorw("Failed to write ERP sync audit entry", zap.Error(err))
	}

	if result.Failed == 0 {
		s.metricsSink.GaugeQuiet(metricsTypes.Metric_Gauge_ErpLastSyncSuccess, float64(result.FinishedAt.Unix()), nil)
	}
	s.logger.Sugar().Infow("ERP sync finished",
		zap.Int("sources", len(sources)),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)

	if s.eventBus != nil {
		s.eventBus.Publish(&eventBusTypes.Event{
			Name: eventBusTypes.Event_ErpSyncCompleted,
			Data: &eventBusTypes.ErpSyncCompletedData{
				Sources: names,
				Failed:  failed,
			},
		})
	}
	return result, nil
}

func (s *ErpSync) auditDetails(result *SyncResult) map[string]interface{} {
	sources := make(map[string]interface{}, len(result.Sources))
	for _, sr := range result.Sources {
		entry := map[string]interface{}{
			"records": sr.Records,
		}
		if sr.Result != nil {
			entry["batch_id"] = sr.Result.BatchId
			entry["rows_processed"] = sr.Result.RowsProcessed
			entry["rows_skipped"] = sr.Result.RowsSkipped
		}
		if sr.Error != "" {
			entry["error"] = sr.Error
		}
		sources[sr.Source] = entry
	}
	return map[string]interface{}{
		"sources": sources,
		"failed":  result.Failed,
	}
}
