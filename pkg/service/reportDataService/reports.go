// Package reportDataService answers the read side of the KPI store: weeks,
// revenue, margin and labor reports, job detail and the audit log.
package reportDataService

import (
	"context"
	"errors"
	"fmt"

	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/service/baseDataService"
	"github.com/zsmith-jtec/AFKPI/pkg/service/types"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	"github.com/zsmith-jtec/AFKPI/pkg/weeks"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

type ReportDataService struct {
	baseDataService.BaseDataService
	db           *gorm.DB
	auditStore   storage.AuditStore
	logger       *zap.Logger
	globalConfig *config.Config
}

func NewReportDataService(
	db *gorm.DB,
	auditStore storage.AuditStore,
	logger *zap.Logger,
	globalConfig *config.Config,
) *ReportDataService {
	return &ReportDataService{
		BaseDataService: baseDataService.BaseDataService{
			DB: db,
		},
		db:           db,
		auditStore:   auditStore,
		logger:       logger,
		globalConfig: globalConfig,
	}
}

// ReportFilter selects the week and optionally one product group. Week is
// any date inside the wanted week; empty means the latest loaded week.
type ReportFilter struct {
	Week         string
	ProductGroup string
}

type WeekSummary struct {
	WeekId    uint64 `json:"weekId"`
	IsoYear   int    `json:"isoYear"`
	IsoWeek   int    `json:"isoWeek"`
	WeekStart string `json:"weekStart"`
	WeekEnd   string `json:"weekEnd"`
	Label     string `json:"label"`
}

func newWeekSummary(w *storage.Week) *WeekSummary {
	if w == nil {
		return nil
	}
	return &WeekSummary{
		WeekId:    w.Id,
		IsoYear:   w.IsoYear,
		IsoWeek:   w.IsoWeek,
		WeekStart: w.WeekStart.Format(weeks.DateLayout),
		WeekEnd:   w.WeekEnd.Format(weeks.DateLayout),
		Label:     fmt.Sprintf("%d-W%02d", w.IsoYear, w.IsoWeek),
	}
}

// ListWeeks returns loaded weeks, newest first.
func (rds *ReportDataService) ListWeeks(ctx context.Context, pagination *types.Pagination) ([]*WeekSummary, error) {
	rows := make([]*storage.Week, 0)
	res := rds.db.WithContext(ctx).Model(&storage.Week{}).
		Order("week_start desc").
		Limit(pagination.Limit()).
		Offset(pagination.Offset()).
		Find(&rows)
	if res.Error != nil {
		return nil, res.Error
	}

	out := make([]*WeekSummary, 0, len(rows))
	for _, w := range rows {
		out = append(out, newWeekSummary(w))
	}
	return out, nil
}

// GetLatestWeek returns nil when no week has been loaded.
func (rds *ReportDataService) GetLatestWeek(ctx context.Context) (*WeekSummary, error) {
	w, err := rds.GetWeekOrLatest(ctx, "")
	if err != nil {
		return nil, err
	}
	return newWeekSummary(w), nil
}

// GetWeekByStart looks up the week containing date. It returns ErrNotFound
// when that week has no data.
func (rds *ReportDataService) GetWeekByStart(ctx context.Context, date string) (*WeekSummary, error) {
	if date == "" {
		return nil, fmt.Errorf("a week start date is required")
	}
	w, err := rds.GetWeekOrLatest(ctx, date)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("week of %s: %w", date, ErrNotFound)
	}
	return newWeekSummary(w), nil
}

func (rds *ReportDataService) ListAuditEntries(ctx context.Context, filter storage.AuditFilter) ([]*storage.AuditEntry, error) {
	return rds.auditStore.ListAuditEntries(filter)
}
