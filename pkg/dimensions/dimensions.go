// Package dimensions finds or creates the week, product and job rows that
// facts reference.
//
// Creation is insert-or-retry-read: the insert uses ON CONFLICT DO NOTHING
// against the natural key, and when it affects no row the winner of the race
// is read back. Existing rows are only ever filled in, never overwritten.
package dimensions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres"
	"github.com/zsmith-jtec/AFKPI/pkg/postgres/helpers"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"github.com/zsmith-jtec/AFKPI/pkg/weeks"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DimensionRaceError is returned when an insert lost a uniqueness race but
// the winning row could not be read back.
type DimensionRaceError struct {
	Dimension string
	Key       string
	Err       error
}

func (e *DimensionRaceError) Error() string {
	msg := fmt.Sprintf("%s '%s' conflicted on insert but could not be re-read", e.Dimension, e.Key)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DimensionRaceError) Unwrap() error {
	return e.Err
}

// TargetLookup supplies target margins for newly seen products.
type TargetLookup interface {
	TargetFor(productGroup, category string) (decimal.Decimal, bool)
}

type ProductInput struct {
	ProductLine  string
	ProductGroup string
	Category     string
	TargetMargin *decimal.Decimal
}

type JobInput struct {
	JobNum        string
	SalesOrderNum string
	PartNum       string
	ProductId     *uint64
	JobClosed     *bool
}

type Resolver struct {
	Db           *gorm.DB
	Logger       *zap.Logger
	Targets      TargetLookup
	globalConfig *config.Config
}

func NewResolver(db *gorm.DB, targets TargetLookup, l *zap.Logger, cfg *config.Config) *Resolver {
	return &Resolver{
		Db:           db,
		Logger:       l,
		Targets:      targets,
		globalConfig: cfg,
	}
}

func (r *Resolver) defaultProductLine() string {
	if r.globalConfig != nil && r.globalConfig.EtlConfig.DefaultProductLine != "" {
		return r.globalConfig.EtlConfig.DefaultProductLine
	}
	return config.DefaultProductLine
}

// findOne reads the row matching query into a new T, returning nil when
// there is none.
func findOne[T any](tx *gorm.DB, query string, args ...interface{}) (*T, error) {
	var row T
	res := tx.Where(query, args...).First(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &row, nil
}

// insertOrReread inserts row unless constraint already holds a match, in
// which case the existing row is read back with query.
func insertOrReread[T any](tx *gorm.DB, dimension string, key string, constraint string, row *T, query string, args ...interface{}) (*T, bool, error) {
	res := tx.Clauses(
		clause.OnConflict{OnConstraint: constraint, DoNothing: true},
		clause.Returning{},
	).Create(row)
	if res.Error != nil && !postgres.IsDuplicateKeyError(res.Error) {
		return nil, false, fmt.Errorf("failed to insert %s '%s': %w", dimension, key, res.Error)
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return row, true, nil
	}

	existing, err := findOne[T](tx, query, args...)
	if err != nil {
		return nil, false, &DimensionRaceError{Dimension: dimension, Key: key, Err: err}
	}
	if existing == nil {
		return nil, false, &DimensionRaceError{Dimension: dimension, Key: key, Err: res.Error}
	}
	return existing, false, nil
}

// FindOrCreateWeek returns the week row starting on w.WeekStart. The bool is
// true when this call created it. Weeks are never modified.
func (r *Resolver) FindOrCreateWeek(tx *gorm.DB, w weeks.Week) (*storage.Week, bool, error) {
	if w.WeekStart.IsZero() {
		return nil, false, fmt.Errorf("week has no start date")
	}
	created := false
	week, err := helpers.WrapTxAndCommit[*storage.Week](func(tx *gorm.DB) (*storage.Week, error) {
		existing, err := findOne[storage.Week](tx, "week_start = ?", w.Key())
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		row := &storage.Week{
			WeekStart: w.WeekStart,
			WeekEnd:   w.WeekEnd,
			IsoYear:   w.IsoYear,
			IsoWeek:   w.IsoWeek,
		}
		week, c, err := insertOrReread(tx, "week", w.Key(), "uniq_dim_week_week_start", row, "week_start = ?", w.Key())
		if err != nil {
			return nil, err
		}
		created = c
		if c {
			r.Logger.Sugar().Debugw("Created week", zap.String("weekStart", w.Key()), zap.Uint64("id", week.Id))
		}
		return week, nil
	}, r.Db, tx)
	return week, created, err
}

// FindOrCreateProduct returns the product for (group, category). New
// products take their target margin from the input or the target lookup; an
// existing product only has an empty product line or target margin filled in.
func (r *Resolver) FindOrCreateProduct(tx *gorm.DB, in ProductInput) (*storage.Product, bool, error) {
	group := strings.TrimSpace(in.ProductGroup)
	category := strings.TrimSpace(in.Category)
	if group == "" || category == "" {
		return nil, false, fmt.Errorf("product needs a group and category, got '%s'/'%s'", group, category)
	}

	target := decimal.NullDecimal{}
	if in.TargetMargin != nil {
		target = decimal.NewNullDecimal(*in.TargetMargin)
	} else if r.Targets != nil {
		if t, ok := r.Targets.TargetFor(group, category); ok {
			target = decimal.NewNullDecimal(t)
		}
	}
	productLine := strings.TrimSpace(in.ProductLine)

	created := false
	product, err := helpers.WrapTxAndCommit[*storage.Product](func(tx *gorm.DB) (*storage.Product, error) {
		key := fmt.Sprintf("%s/%s", group, category)
		query := "product_group = ? and category = ?"

		existing, err := findOne[storage.Product](tx, query, group, category)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			line := productLine
			if line == "" {
				line = r.defaultProductLine()
			}
			row := &storage.Product{
				ProductLine:  line,
				ProductGroup: group,
				Category:     category,
				TargetMargin: target,
			}
			p, c, err := insertOrReread(tx, "product", key, "uniq_dim_product_group_category", row, query, group, category)
			if err != nil {
				return nil, err
			}
			if c {
				created = true
				r.Logger.Sugar().Debugw("Created product", zap.String("product", key), zap.Uint64("id", p.Id))
				return p, nil
			}
			existing = p
		}

		return r.mergeProduct(tx, existing, productLine, target)
	}, r.Db, tx)
	return product, created, err
}

func (r *Resolver) mergeProduct(tx *gorm.DB, existing *storage.Product, productLine string, target decimal.NullDecimal) (*storage.Product, error) {
	updates := map[string]interface{}{}
	if existing.ProductLine == "" && productLine != "" {
		updates["product_line"] = productLine
	}
	if !existing.TargetMargin.Valid && target.Valid {
		updates["target_margin"] = target.Decimal
	}
	if len(updates) == 0 {
		return existing, nil
	}

	res := tx.Model(existing).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update product '%s/%s': %w", existing.ProductGroup, existing.Category, res.Error)
	}
	if v, ok := updates["product_line"]; ok {
		existing.ProductLine = v.(string)
	}
	if target.Valid && !existing.TargetMargin.Valid {
		existing.TargetMargin = target
	}
	return existing, nil
}

// FindOrCreateJob returns the job for in.JobNum. Fields that are empty on the
// stored job are filled from in; set fields are never changed, except that a
// job may move from open to closed.
func (r *Resolver) FindOrCreateJob(tx *gorm.DB, in JobInput) (*storage.Job, bool, error) {
	jobNum := strings.TrimSpace(in.JobNum)
	if jobNum == "" {
		return nil, false, fmt.Errorf("job needs a job number")
	}

	created := false
	job, err := helpers.WrapTxAndCommit[*storage.Job](func(tx *gorm.DB) (*storage.Job, error) {
		existing, err := findOne[storage.Job](tx, "job_num = ?", jobNum)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			row := &storage.Job{
				JobNum:        jobNum,
				SalesOrderNum: optionalString(in.SalesOrderNum),
				PartNum:       optionalString(in.PartNum),
				ProductId:     in.ProductId,
				JobClosed:     in.JobClosed != nil && *in.JobClosed,
			}
			j, c, err := insertOrReread(tx, "job", jobNum, "uniq_dim_job_job_num", row, "job_num = ?", jobNum)
			if err != nil {
				return nil, err
			}
			if c {
				created = true
				r.Logger.Sugar().Debugw("Created job", zap.String("jobNum", jobNum), zap.Uint64("id", j.Id))
				return j, nil
			}
			existing = j
		}
		return r.mergeJob(tx, existing, in)
	}, r.Db, tx)
	return job, created, err
}

func (r *Resolver) mergeJob(tx *gorm.DB, existing *storage.Job, in JobInput) (*storage.Job, error) {
	updates := map[string]interface{}{}
	if isEmpty(existing.SalesOrderNum) && strings.TrimSpace(in.SalesOrderNum) != "" {
		updates["sales_order_num"] = strings.TrimSpace(in.SalesOrderNum)
	}
	if isEmpty(existing.PartNum) && strings.TrimSpace(in.PartNum) != "" {
		updates["part_num"] = strings.TrimSpace(in.PartNum)
	}
	if existing.ProductId == nil && in.ProductId != nil {
		updates["product_id"] = *in.ProductId
	}
	if !existing.JobClosed && in.JobClosed != nil && *in.JobClosed {
		updates["job_closed"] = true
	}
	if len(updates) == 0 {
		return existing, nil
	}

	res := tx.Model(existing).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update job '%s': %w", existing.JobNum, res.Error)
	}
	if v, ok := updates["sales_order_num"]; ok {
		s := v.(string)
		existing.SalesOrderNum = &s
	}
	if v, ok := updates["part_num"]; ok {
		s := v.(string)
		existing.PartNum = &s
	}
	if v, ok := updates["product_id"]; ok {
		id := v.(uint64)
		existing.ProductId = &id
	}
	if _, ok := updates["job_closed"]; ok {
		existing.JobClosed = true
	}
	return existing, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func isEmpty(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
