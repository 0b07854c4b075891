// Package loader runs one upload through normalization, aggregation and a
// single database transaction that writes dimensions, facts and the audit
// entry for the batch.
package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/metrics"
	"github.com/zsmith-jtec/AFKPI/internal/metrics/metricsTypes"
	"github.com/zsmith-jtec/AFKPI/pkg/aggregator"
	"github.com/zsmith-jtec/AFKPI/pkg/dimensions"
	"github.com/zsmith-jtec/AFKPI/pkg/eventBus/eventBusTypes"
	"github.com/zsmith-jtec/AFKPI/pkg/facts"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"github.com/zsmith-jtec/AFKPI/pkg/tabular"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxResultWarnings = 20

type LoadOptions struct {
	// ForceRevenueDirection overrides the open order flag of revenue rows.
	ForceRevenueDirection config.RevenueDirection

	// SkipJobPrefixes drops job rows whose number starts with any prefix.
	SkipJobPrefixes []string

	// Progress is called after every aggregated row is written or skipped.
	Progress func(done int, total int)
}

type LoadResult struct {
	BatchId string          `json:"batchId"`
	Kind    normalizer.Kind `json:"kind"`
	Actor   string          `json:"actor"`

	// RowsIn counts source rows; the remaining counters refer to aggregated
	// rows except RowsDropped and RowsCoerced.
	RowsIn        int `json:"rowsIn"`
	RowsProcessed int `json:"rowsProcessed"`
	RowsSkipped   int `json:"rowsSkipped"`
	RowsDropped   int `json:"rowsDropped"`
	RowsCoerced   int `json:"rowsCoerced"`
	RowsInserted  int `json:"rowsInserted"`
	RowsUpdated   int `json:"rowsUpdated"`

	Exports  []string `json:"exports"`
	Warnings []string `json:"warnings,omitempty"`
	Message  string   `json:"message"`
}

type loadRequest struct {
	Kind  normalizer.Kind `validate:"required,oneof=revenue labor jobs material"`
	Actor string          `validate:"required,max=255"`
}

// rowWriter writes one aggregated row and reports whether it inserted a new
// fact or dimension row.
type rowWriter struct {
	describe string
	write    func(tx *gorm.DB) (bool, error)
}

type Loader struct {
	db           *gorm.DB
	resolver     *dimensions.Resolver
	upserter     *facts.Upserter
	auditStore   storage.AuditStore
	rates        aggregator.RateLookup
	eventBus     eventBusTypes.IEventBus
	metricsSink  *metrics.MetricsSink
	logger       *zap.Logger
	globalConfig *config.Config
	validate     *validator.Validate
}

func NewLoader(
	db *gorm.DB,
	resolver *dimensions.Resolver,
	upserter *facts.Upserter,
	auditStore storage.AuditStore,
	rates aggregator.RateLookup,
	eb eventBusTypes.IEventBus,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *Loader {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &Loader{
		db:           db,
		resolver:     resolver,
		upserter:     upserter,
		auditStore:   auditStore,
		rates:        rates,
		eventBus:     eb,
		metricsSink:  ms,
		logger:       l,
		globalConfig: cfg,
		validate:     validator.New(),
	}
}

func kindLabels(kind normalizer.Kind) []metricsTypes.MetricsLabel {
	return []metricsTypes.MetricsLabel{{Name: "kind", Value: string(kind)}}
}

// Load ingests one table of kind on behalf of actor. Missing required
// columns fail with *normalizer.SchemaValidationError before anything is
// written. Rows that fail to write are skipped and counted; the rest commit
// together with one audit entry.
func (l *Loader) Load(ctx context.Context, kind normalizer.Kind, table *tabular.Table, actor string, opts *LoadOptions) (*LoadResult, error) {
	if opts == nil {
		opts = &LoadOptions{}
	}
	actor = strings.TrimSpace(actor)
	if err := l.validate.Struct(&loadRequest{Kind: kind, Actor: actor}); err != nil {
		return nil, errors.Wrap(err, "invalid load request")
	}
	start := time.Now()

	norm, err := normalizer.Normalize(kind, table)
	if err != nil {
		l.metricsSink.IncrQuiet(metricsTypes.Metric_Incr_LoadRejected, kindLabels(kind), 1)
		l.logger.Sugar().Warnw("Rejected upload", zap.String("kind", string(kind)), zap.String("actor", actor), zap.Error(err))
		return nil, err
	}

	writers, stats := l.plan(norm, opts)

	res := &LoadResult{
		BatchId:     uuid.New().String(),
		Kind:        kind,
		Actor:       actor,
		RowsIn:      stats.RowsIn,
		RowsDropped: stats.RowsDropped,
		RowsCoerced: stats.RowsCoerced,
		Exports:     norm.Exports,
	}
	for _, w := range stats.Warnings {
		res.addWarning(w.Error())
	}

	tx := l.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, errors.Wrap(tx.Error, "failed to start load transaction")
	}

	for i, w := range writers {
		if err := ctx.Err(); err != nil {
			tx.Rollback()
			return nil, errors.Wrap(err, "load cancelled")
		}

		savepoint := fmt.Sprintf("load_row_%d", i)
		if err := tx.SavePoint(savepoint).Error; err != nil {
			tx.Rollback()
			return nil, errors.Wrap(err, "failed to create savepoint")
		}

		inserted, err := w.write(tx)
		if err != nil {
			if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
				tx.Rollback()
				return nil, errors.Wrapf(rbErr, "failed to roll back %s", w.describe)
			}
			res.RowsSkipped++
			res.addWarning(fmt.Sprintf("%s: %v", w.describe, err))
			l.logger.Sugar().Warnw("Skipped row",
				zap.String("batchId", res.BatchId),
				zap.String("row", w.describe),
				zap.Error(err),
			)
		} else {
			res.RowsProcessed++
			if inserted {
				res.RowsInserted++
			} else {
				res.RowsUpdated++
			}
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(writers))
		}
	}

	details := map[string]interface{}{
		"batch_id":       res.BatchId,
		"row_count":      res.RowsProcessed,
		"rows_in":        res.RowsIn,
		"rows_skipped":   res.RowsSkipped,
		"rows_dropped":   res.RowsDropped,
		"rows_coerced":   res.RowsCoerced,
		"rows_inserted":  res.RowsInserted,
		"rows_updated":   res.RowsUpdated,
		"export_schemas": res.Exports,
	}
	if _, err := l.auditStore.InsertAuditEntry(tx, actor, storage.AuditAction_Upload, string(kind), details); err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "failed to write audit entry")
	}
	if err := tx.Commit().Error; err != nil {
		return nil, errors.Wrap(err, "failed to commit load")
	}

	res.Message = res.summary()
	l.emit(res, time.Since(start))
	return res, nil
}

func (r *LoadResult) addWarning(w string) {
	if len(r.Warnings) < maxResultWarnings {
		r.Warnings = append(r.Warnings, w)
	}
}

func (r *LoadResult) summary() string {
	msg := fmt.Sprintf("Loaded %d %s rows (%d new, %d updated)", r.RowsProcessed, r.Kind, r.RowsInserted, r.RowsUpdated)
	if r.RowsSkipped > 0 {
		msg += fmt.Sprintf("; skipped %d rows that failed to save", r.RowsSkipped)
	}
	if r.RowsDropped > 0 {
		msg += fmt.Sprintf("; dropped %d source rows without a usable date or job", r.RowsDropped)
	}
	if r.RowsCoerced > 0 {
		msg += fmt.Sprintf("; %d source rows had unreadable values treated as 0", r.RowsCoerced)
	}
	return msg
}

func (l *Loader) emit(res *LoadResult, elapsed time.Duration) {
	labels := kindLabels(res.Kind)
	l.metricsSink.IncrQuiet(metricsTypes.Metric_Incr_LoadRowsProcessed, labels, float64(res.RowsProcessed))
	l.metricsSink.IncrQuiet(metricsTypes.Metric_Incr_LoadRowsSkipped, labels, float64(res.RowsSkipped))
	l.metricsSink.IncrQuiet(metricsTypes.Metric_Incr_LoadRowsDropped, labels, float64(res.RowsDropped))
	l.metricsSink.TimingQuiet(metricsTypes.Metric_Timing_LoadDuration, elapsed, labels)

	l.logger.Sugar().Infow("Load committed",
		zap.String("batchId", res.BatchId),
		zap.String("kind", string(res.Kind)),
		zap.String("actor", res.Actor),
		zap.Int("rowsProcessed", res.RowsProcessed),
		zap.Int("rowsSkipped", res.RowsSkipped),
		zap.Int("rowsDropped", res.RowsDropped),
		zap.Duration("elapsed", elapsed),
	)

	if l.eventBus != nil {
		l.eventBus.Publish(&eventBusTypes.Event{
			Name: eventBusTypes.Event_LoadCompleted,
			Data: &eventBusTypes.LoadCompletedData{
				BatchId:       res.BatchId,
				Kind:          string(res.Kind),
				Actor:         res.Actor,
				RowsProcessed: res.RowsProcessed,
				RowsSkipped:   res.RowsSkipped,
				RowsDropped:   res.RowsDropped,
				Message:       res.Message,
			},
		})
	}
}
