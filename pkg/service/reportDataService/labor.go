package reportDataService

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zsmith-jtec/AFKPI/pkg/service/types"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatus_All       JobStatus = "all"
	JobStatus_Wip       JobStatus = "wip"
	JobStatus_Completed JobStatus = "completed"
)

func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case "", JobStatus_All:
		return JobStatus_All, nil
	case JobStatus_Wip, JobStatus_Completed:
		return JobStatus(s), nil
	}
	return "", fmt.Errorf("unknown job status '%s', expected one of: all, wip, completed", s)
}

type LaborFilter struct {
	ReportFilter
	Status     JobStatus
	Pagination *types.Pagination
}

type LaborByJob struct {
	JobNum        string          `json:"jobNum"`
	SalesOrderNum *string         `json:"salesOrderNum"`
	ProductGroup  *string         `json:"productGroup"`
	JobClosed     bool            `json:"jobClosed"`
	LaborHours    decimal.Decimal `json:"laborHours"`
	BurdenHours   decimal.Decimal `json:"burdenHours"`
	DirectLabor   decimal.Decimal `json:"directLabor"`
	Burden        decimal.Decimal `json:"burden"`
	TotalLabor    decimal.Decimal `json:"totalLabor"`
}

type LaborSummary struct {
	Week             *WeekSummary    `json:"week"`
	Status           JobStatus       `json:"status"`
	TotalLaborHours  decimal.Decimal `json:"totalLaborHours"`
	TotalBurdenHours decimal.Decimal `json:"totalBurdenHours"`
	TotalDirectLabor decimal.Decimal `json:"totalDirectLabor"`
	TotalBurden      decimal.Decimal `json:"totalBurden"`
	TotalLaborCost   decimal.Decimal `json:"totalLaborCost"`
	JobCount         int             `json:"jobCount"`
	ByJob            []*LaborByJob   `json:"byJob"`
}

type laborTotals struct {
	LaborHours  decimal.Decimal
	BurdenHours decimal.Decimal
	DirectLabor decimal.Decimal
	Burden      decimal.Decimal
	JobCount    int
}

const laborFilterClause = `
	where
		c.week_id = @weekId
		and (@status = 'all' or j.job_closed = (@status = 'completed'))
		and (@productGroup = '' or p.product_group = @productGroup)
`

const laborFrom = `
	from fact_costs as c
	join dim_job as j on (j.id = c.job_id)
	left join dim_product as p on (p.id = j.product_id)
`

// LaborSummary reports hours and labor cost per job for one week, largest
// labor cost first.
func (rds *ReportDataService) LaborSummary(ctx context.Context, filter LaborFilter) (*LaborSummary, error) {
	status, err := ParseJobStatus(string(filter.Status))
	if err != nil {
		return nil, err
	}

	summary := &LaborSummary{
		Status:           status,
		TotalLaborHours:  decimal.Zero,
		TotalBurdenHours: decimal.Zero,
		TotalDirectLabor: decimal.Zero,
		TotalBurden:      decimal.Zero,
		TotalLaborCost:   decimal.Zero,
		ByJob:            make([]*LaborByJob, 0),
	}

	week, err := rds.GetWeekOrLatest(ctx, filter.Week)
	if err != nil {
		return nil, err
	}
	if week == nil {
		return summary, nil
	}
	summary.Week = newWeekSummary(week)

	params := []interface{}{
		sql.Named("weekId", week.Id),
		sql.Named("status", string(status)),
		sql.Named("productGroup", filter.ProductGroup),
	}

	totalsQuery := `
		select
			coalesce(sum(c.labor_hours), 0) as labor_hours,
			coalesce(sum(c.burden_hours), 0) as burden_hours,
			coalesce(sum(c.direct_labor), 0) as direct_labor,
			coalesce(sum(c.burden), 0) as burden,
			count(distinct c.job_id) as job_count
	` + laborFrom + laborFilterClause

	totals := &laborTotals{}
	res := rds.db.WithContext(ctx).Raw(totalsQuery, params...).Scan(totals)
	if res.Error != nil {
		return nil, res.Error
	}
	summary.TotalLaborHours = totals.LaborHours
	summary.TotalBurdenHours = totals.BurdenHours
	summary.TotalDirectLabor = totals.DirectLabor
	summary.TotalBurden = totals.Burden
	summary.TotalLaborCost = totals.DirectLabor.Add(totals.Burden)
	summary.JobCount = totals.JobCount

	jobsQuery := `
		select
			j.job_num,
			j.sales_order_num,
			p.product_group,
			j.job_closed,
			sum(c.labor_hours) as labor_hours,
			sum(c.burden_hours) as burden_hours,
			sum(c.direct_labor) as direct_labor,
			sum(c.burden) as burden
	` + laborFrom + laborFilterClause + `
		group by 1, 2, 3, 4
		order by sum(c.direct_labor + c.burden) desc, j.job_num
		limit @limit offset @offset
	`
	byJob := make([]*LaborByJob, 0)
	res = rds.db.WithContext(ctx).Raw(jobsQuery, append(params,
		sql.Named("limit", filter.Pagination.Limit()),
		sql.Named("offset", filter.Pagination.Offset()),
	)...).Scan(&byJob)
	if res.Error != nil {
		return nil, res.Error
	}
	for _, j := range byJob {
		j.TotalLabor = j.DirectLabor.Add(j.Burden)
	}
	summary.ByJob = byJob
	return summary, nil
}

type JobWeekCosts struct {
	Week         *WeekSummary    `json:"week"`
	LaborHours   decimal.Decimal `json:"laborHours"`
	BurdenHours  decimal.Decimal `json:"burdenHours"`
	DirectLabor  decimal.Decimal `json:"directLabor"`
	Burden       decimal.Decimal `json:"burden"`
	MaterialCost decimal.Decimal `json:"materialCost"`
	TotalCost    decimal.Decimal `json:"totalCost"`
}

type JobDetail struct {
	JobNum        string          `json:"jobNum"`
	SalesOrderNum *string         `json:"salesOrderNum"`
	PartNum       *string         `json:"partNum"`
	JobClosed     bool            `json:"jobClosed"`
	ProductLine   *string         `json:"productLine"`
	ProductGroup  *string         `json:"productGroup"`
	Category      *string         `json:"category"`
	Weeks         []*JobWeekCosts `json:"weeks"`
	TotalCost     decimal.Decimal `json:"totalCost"`
}

type jobCostRow struct {
	WeekId       uint64
	IsoYear      int
	IsoWeek      int
	WeekStart    time.Time
	WeekEnd      time.Time
	LaborHours   decimal.Decimal
	BurdenHours  decimal.Decimal
	DirectLabor  decimal.Decimal
	Burden       decimal.Decimal
	MaterialCost decimal.Decimal
}

// JobDetail returns a job with its product and its costs per week, newest
// week first. Unknown jobs yield ErrNotFound.
func (rds *ReportDataService) JobDetail(ctx context.Context, jobNum string) (*JobDetail, error) {
	job := &storage.Job{}
	res := rds.db.WithContext(ctx).Model(&storage.Job{}).Where("job_num = ?", jobNum).First(job)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobNum, ErrNotFound)
		}
		return nil, res.Error
	}

	detail := &JobDetail{
		JobNum:        job.JobNum,
		SalesOrderNum: job.SalesOrderNum,
		PartNum:       job.PartNum,
		JobClosed:     job.JobClosed,
		Weeks:         make([]*JobWeekCosts, 0),
		TotalCost:     decimal.Zero,
	}

	if job.ProductId != nil {
		product := &storage.Product{}
		res = rds.db.WithContext(ctx).Model(&storage.Product{}).Where("id = ?", *job.ProductId).First(product)
		if res.Error != nil {
			return nil, res.Error
		}
		detail.ProductLine = &product.ProductLine
		detail.ProductGroup = &product.ProductGroup
		detail.Category = &product.Category
	}

	query := `
		select
			w.id as week_id,
			w.iso_year,
			w.iso_week,
			w.week_start,
			w.week_end,
			c.labor_hours,
			c.burden_hours,
			c.direct_labor,
			c.burden,
			c.material_cost
		from fact_costs as c
		join dim_week as w on (w.id = c.week_id)
		where c.job_id = @jobId
		order by w.week_start desc
	`
	rows := make([]*jobCostRow, 0)
	res = rds.db.WithContext(ctx).Raw(query, sql.Named("jobId", job.Id)).Scan(&rows)
	if res.Error != nil {
		return nil, res.Error
	}

	for _, r := range rows {
		total := r.DirectLabor.Add(r.Burden).Add(r.MaterialCost)
		detail.Weeks = append(detail.Weeks, &JobWeekCosts{
			Week: newWeekSummary(&storage.Week{
				Id:        r.WeekId,
				IsoYear:   r.IsoYear,
				IsoWeek:   r.IsoWeek,
				WeekStart: r.WeekStart,
				WeekEnd:   r.WeekEnd,
			}),
			LaborHours:   r.LaborHours,
			BurdenHours:  r.BurdenHours,
			DirectLabor:  r.DirectLabor,
			Burden:       r.Burden,
			MaterialCost: r.MaterialCost,
			TotalCost:    total,
		})
		detail.TotalCost = detail.TotalCost.Add(total)
	}
	return detail, nil
}
