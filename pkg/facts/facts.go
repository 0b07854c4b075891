// Package facts writes weekly revenue and cost facts. A fact is keyed by its
// natural key and re-uploads replace the measures they own.
package facts

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres/helpers"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LaborMeasures struct {
	LaborHours  decimal.Decimal
	BurdenHours decimal.Decimal
	DirectLabor decimal.Decimal
	Burden      decimal.Decimal
}

var (
	revenueColumns  = []string{"revenue", "order_count"}
	laborColumns    = []string{"labor_hours", "burden_hours", "direct_labor", "burden"}
	materialColumns = []string{"material_cost"}
)

type Upserter struct {
	Db     *gorm.DB
	Logger *zap.Logger
}

func NewUpserter(db *gorm.DB, l *zap.Logger) *Upserter {
	return &Upserter{
		Db:     db,
		Logger: l,
	}
}

// timestamps reads back the created_at and updated_at of a fact row.
type timestamps[T any] func(row *T) (time.Time, time.Time)

func revenueTimestamps(f *storage.RevenueFact) (time.Time, time.Time) {
	return f.CreatedAt, f.UpdatedAt
}

func costTimestamps(f *storage.CostFact) (time.Time, time.Time) {
	return f.CreatedAt, f.UpdatedAt
}

// upsert overwrites the owned columns of the row matching where, or inserts
// row when there is none. The bool is true for inserts.
func upsert[T any](
	tx *gorm.DB,
	constraint string,
	owned []string,
	updates map[string]interface{},
	row *T,
	stamps timestamps[T],
	where string,
	args ...interface{},
) (*T, bool, error) {
	var existing T
	res := tx.Where(where, args...).First(&existing)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, false, res.Error
	}
	if res.Error == nil {
		if res := tx.Model(&existing).Updates(updates); res.Error != nil {
			return nil, false, res.Error
		}
		if res := tx.Where(where, args...).First(&existing); res.Error != nil {
			return nil, false, res.Error
		}
		return &existing, false, nil
	}
	return insertOrMerge(tx, constraint, owned, row, stamps)
}

// insertOrMerge inserts row. A concurrent batch may have inserted the same key
// since it was read; the later writer's measures win and the row counts as an
// update. Inserts set created_at and updated_at to the same instant, a merge
// keeps the earlier created_at.
func insertOrMerge[T any](tx *gorm.DB, constraint string, owned []string, row *T, stamps timestamps[T]) (*T, bool, error) {
	res := tx.Clauses(
		clause.OnConflict{
			OnConstraint: constraint,
			DoUpdates:    clause.AssignmentColumns(append(append([]string{}, owned...), "updated_at")),
		},
		clause.Returning{},
	).Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	createdAt, updatedAt := stamps(row)
	return row, createdAt.Equal(updatedAt), nil
}

// UpsertRevenue writes the revenue fact for (week, product, direction).
func (u *Upserter) UpsertRevenue(
	tx *gorm.DB,
	weekId uint64,
	productId uint64,
	direction storage.Direction,
	revenue decimal.Decimal,
	orderCount int,
) (*storage.RevenueFact, bool, error) {
	if direction != storage.Direction_Inbound && direction != storage.Direction_Outbound {
		return nil, false, fmt.Errorf("invalid revenue direction '%s'", direction)
	}
	inserted := false
	fact, err := helpers.WrapTxAndCommit[*storage.RevenueFact](func(tx *gorm.DB) (*storage.RevenueFact, error) {
		f, ins, err := upsert(tx,
			"uniq_fact_revenue_week_product_direction",
			revenueColumns,
			map[string]interface{}{
				"revenue":     revenue.Round(2),
				"order_count": orderCount,
			},
			&storage.RevenueFact{
				WeekId:     weekId,
				ProductId:  productId,
				Direction:  direction,
				Revenue:    revenue.Round(2),
				OrderCount: orderCount,
			},
			revenueTimestamps,
			"week_id = ? and product_id = ? and direction = ?", weekId, productId, direction,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert revenue fact for week %d product %d %s: %w", weekId, productId, direction, err)
		}
		inserted = ins
		return f, nil
	}, u.Db, tx)
	return fact, inserted, err
}

// UpsertLabor replaces the labor measures of the cost fact for (week, job),
// leaving material cost untouched.
func (u *Upserter) UpsertLabor(tx *gorm.DB, weekId uint64, jobId uint64, m LaborMeasures) (*storage.CostFact, bool, error) {
	inserted := false
	fact, err := helpers.WrapTxAndCommit[*storage.CostFact](func(tx *gorm.DB) (*storage.CostFact, error) {
		f, ins, err := upsert(tx,
			"uniq_fact_costs_week_job",
			laborColumns,
			map[string]interface{}{
				"labor_hours":  m.LaborHours.Round(2),
				"burden_hours": m.BurdenHours.Round(2),
				"direct_labor": m.DirectLabor.Round(2),
				"burden":       m.Burden.Round(2),
			},
			&storage.CostFact{
				WeekId:       weekId,
				JobId:        jobId,
				LaborHours:   m.LaborHours.Round(2),
				BurdenHours:  m.BurdenHours.Round(2),
				DirectLabor:  m.DirectLabor.Round(2),
				Burden:       m.Burden.Round(2),
				MaterialCost: decimal.Zero,
			},
			costTimestamps,
			"week_id = ? and job_id = ?", weekId, jobId,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert labor for week %d job %d: %w", weekId, jobId, err)
		}
		inserted = ins
		return f, nil
	}, u.Db, tx)
	return fact, inserted, err
}

// UpsertMaterial replaces the material cost of the cost fact for (week, job),
// leaving labor measures untouched.
func (u *Upserter) UpsertMaterial(tx *gorm.DB, weekId uint64, jobId uint64, materialCost decimal.Decimal) (*storage.CostFact, bool, error) {
	inserted := false
	fact, err := helpers.WrapTxAndCommit[*storage.CostFact](func(tx *gorm.DB) (*storage.CostFact, error) {
		f, ins, err := upsert(tx,
			"uniq_fact_costs_week_job",
			materialColumns,
			map[string]interface{}{
				"material_cost": materialCost.Round(2),
			},
			&storage.CostFact{
				WeekId:       weekId,
				JobId:        jobId,
				LaborHours:   decimal.Zero,
				BurdenHours:  decimal.Zero,
				DirectLabor:  decimal.Zero,
				Burden:       decimal.Zero,
				MaterialCost: materialCost.Round(2),
			},
			costTimestamps,
			"week_id = ? and job_id = ?", weekId, jobId,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert material for week %d job %d: %w", weekId, jobId, err)
		}
		inserted = ins
		return f, nil
	}, u.Db, tx)
	return fact, inserted, err
}
