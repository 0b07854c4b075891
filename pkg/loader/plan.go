package loader

import (
	"fmt"
	"strings"

	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/aggregator"
	"github.com/zsmith-jtec/AFKPI/pkg/dimensions"
	"github.com/zsmith-jtec/AFKPI/pkg/facts"
	"github.com/zsmith-jtec/AFKPI/pkg/normalizer"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"gorm.io/gorm"
)

func directionFor(d config.RevenueDirection) storage.Direction {
	if d == config.RevenueDirection_Inbound {
		return storage.Direction_Inbound
	}
	return storage.Direction_Outbound
}

func (l *Loader) etlConfig() config.EtlConfig {
	if l.globalConfig == nil {
		return config.NewEtlConfig()
	}
	return l.globalConfig.EtlConfig
}

// plan aggregates the normalized rows and returns one writer per aggregated
// row, in aggregation order.
func (l *Loader) plan(norm *normalizer.Normalized, opts *LoadOptions) ([]rowWriter, *aggregator.Stats) {
	etl := l.etlConfig()

	switch norm.Kind {
	case normalizer.Kind_Revenue:
		rows, stats := aggregator.AggregateRevenue(norm, aggregator.RevenueOptions{
			DefaultDirection:   etl.DefaultRevenueDirection,
			ForceDirection:     opts.ForceRevenueDirection,
			DefaultProductLine: etl.DefaultProductLine,
		})
		return l.revenueWriters(rows), stats

	case normalizer.Kind_Labor:
		rows, stats := aggregator.AggregateLabor(norm, aggregator.LaborOptions{
			Rates:             l.rates,
			DefaultLaborRate:  etl.DefaultLaborRate,
			DefaultBurdenRate: etl.DefaultBurdenRate,
		})
		return l.laborWriters(rows), stats

	case normalizer.Kind_Material:
		rows, stats := aggregator.AggregateMaterial(norm)
		return l.materialWriters(rows), stats

	case normalizer.Kind_Jobs:
		rows, stats := aggregator.AggregateJobs(norm)
		kept := make([]*aggregator.JobRow, 0, len(rows))
		for _, r := range rows {
			if hasAnyPrefix(r.JobNum, opts.SkipJobPrefixes) {
				stats.RowsDropped++
				continue
			}
			kept = append(kept, r)
		}
		return l.jobWriters(kept), stats
	}
	return nil, &aggregator.Stats{}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (l *Loader) revenueWriters(rows []*aggregator.RevenueRow) []rowWriter {
	writers := make([]rowWriter, 0, len(rows))
	for _, row := range rows {
		row := row
		writers = append(writers, rowWriter{
			describe: fmt.Sprintf("revenue %s %s/%s %s", row.Week.Key(), row.ProductGroup, row.Category, row.Direction),
			write: func(tx *gorm.DB) (bool, error) {
				week, _, err := l.resolver.FindOrCreateWeek(tx, row.Week)
				if err != nil {
					return false, err
				}
				product, _, err := l.resolver.FindOrCreateProduct(tx, dimensions.ProductInput{
					ProductLine:  row.ProductLine,
					ProductGroup: row.ProductGroup,
					Category:     row.Category,
				})
				if err != nil {
					return false, err
				}
				_, inserted, err := l.upserter.UpsertRevenue(tx, week.Id, product.Id, directionFor(row.Direction), row.Revenue, row.OrderCount)
				return inserted, err
			},
		})
	}
	return writers
}

func (l *Loader) laborWriters(rows []*aggregator.LaborRow) []rowWriter {
	writers := make([]rowWriter, 0, len(rows))
	for _, row := range rows {
		row := row
		writers = append(writers, rowWriter{
			describe: fmt.Sprintf("labor %s job %s", row.Week.Key(), row.JobNum),
			write: func(tx *gorm.DB) (bool, error) {
				week, _, err := l.resolver.FindOrCreateWeek(tx, row.Week)
				if err != nil {
					return false, err
				}
				job, _, err := l.resolver.FindOrCreateJob(tx, dimensions.JobInput{JobNum: row.JobNum})
				if err != nil {
					return false, err
				}
				_, inserted, err := l.upserter.UpsertLabor(tx, week.Id, job.Id, facts.LaborMeasures{
					LaborHours:  row.LaborHours,
					BurdenHours: row.BurdenHours,
					DirectLabor: row.DirectLabor,
					Burden:      row.Burden,
				})
				return inserted, err
			},
		})
	}
	return writers
}

func (l *Loader) materialWriters(rows []*aggregator.MaterialRow) []rowWriter {
	writers := make([]rowWriter, 0, len(rows))
	for _, row := range rows {
		row := row
		writers = append(writers, rowWriter{
			describe: fmt.Sprintf("material %s job %s", row.Week.Key(), row.JobNum),
			write: func(tx *gorm.DB) (bool, error) {
				week, _, err := l.resolver.FindOrCreateWeek(tx, row.Week)
				if err != nil {
					return false, err
				}
				job, _, err := l.resolver.FindOrCreateJob(tx, dimensions.JobInput{JobNum: row.JobNum})
				if err != nil {
					return false, err
				}
				_, inserted, err := l.upserter.UpsertMaterial(tx, week.Id, job.Id, row.MaterialCost)
				return inserted, err
			},
		})
	}
	return writers
}

func (l *Loader) jobWriters(rows []*aggregator.JobRow) []rowWriter {
	writers := make([]rowWriter, 0, len(rows))
	for _, row := range rows {
		row := row
		writers = append(writers, rowWriter{
			describe: fmt.Sprintf("job %s", row.JobNum),
			write: func(tx *gorm.DB) (bool, error) {
				var productId *uint64
				if row.ProductGroup != "" {
					product, _, err := l.resolver.FindOrCreateProduct(tx, dimensions.ProductInput{
						ProductLine:  row.ProductLine,
						ProductGroup: row.ProductGroup,
						Category:     row.Category,
					})
					if err != nil {
						return false, err
					}
					productId = &product.Id
				}
				_, created, err := l.resolver.FindOrCreateJob(tx, dimensions.JobInput{
					JobNum:        row.JobNum,
					SalesOrderNum: row.SalesOrderNum,
					PartNum:       row.PartNum,
					ProductId:     productId,
					JobClosed:     row.JobClosed,
				})
				return created, err
			},
		})
	}
	return writers
}
