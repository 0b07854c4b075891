package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/pkg/service/reportDataService"
	"github.com/zsmith-jtec/AFKPI/pkg/service/types"
	"github.com/zsmith-jtec/AFKPI/pkg/storage"
	pgStorage "github.com/zsmith-jtec/AFKPI/pkg/storage/postgres"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print KPI reports as JSON",
}

var reportWeeksCmd = &cobra.Command{
	Use:   "weeks",
	Short: "List loaded weeks, newest first",
	RunE: withReportService(func(ctx context.Context, rds *reportDataService.ReportDataService, cfg *config.Config, args []string) (any, error) {
		return rds.ListWeeks(ctx, reportPagination(cfg))
	}),
}

var reportRevenueCmd = &cobra.Command{
	Use:   "revenue",
	Short: "Inbound and outbound revenue per product group and category",
	RunE: withReportService(func(ctx context.Context, rds *reportDataService.ReportDataService, cfg *config.Config, args []string) (any, error) {
		return rds.RevenueSummary(ctx, reportFilter(cfg))
	}),
}

var reportMarginCmd = &cobra.Command{
	Use:   "margin",
	Short: "Margin per product group, or per category when a product group is given",
	RunE: withReportService(func(ctx context.Context, rds *reportDataService.ReportDataService, cfg *config.Config, args []string) (any, error) {
		filter := reportFilter(cfg)
		if filter.ProductGroup != "" {
			return rds.MarginByCategory(ctx, filter)
		}
		return rds.MarginSummary(ctx, filter)
	}),
}

var reportLaborCmd = &cobra.Command{
	Use:   "labor",
	Short: "Labor hours and cost per job",
	RunE: withReportService(func(ctx context.Context, rds *reportDataService.ReportDataService, cfg *config.Config, args []string) (any, error) {
		status, err := reportDataService.ParseJobStatus(cfg.ReportConfig.Status)
		if err != nil {
			return nil, err
		}
		return rds.LaborSummary(ctx, reportDataService.LaborFilter{
			ReportFilter: reportFilter(cfg),
			Status:       status,
			Pagination:   reportPagination(cfg),
		})
	}),
}

var reportJobCmd = &cobra.Command{
	Use:   "job <job number>",
	Short: "One job with its product and weekly costs",
	Args:  cobra.ExactArgs(1),
	RunE: withReportService(func(ctx context.Context, rds *reportDataService.ReportDataService, cfg *config.Config, args []string) (any, error) {
		return rds.JobDetail(ctx, args[0])
	}),
}

var reportAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Recent audit log entries",
	RunE: withReportService(func(ctx context.Context, rds *reportDataService.ReportDataService, cfg *config.Config, args []string) (any, error) {
		return rds.ListAuditEntries(ctx, storage.AuditFilter{
			Action: storage.AuditAction(cfg.ReportConfig.Action),
			Actor:  cfg.ReportConfig.Actor,
			Entity: cfg.ReportConfig.Entity,
			Limit:  cfg.ReportConfig.Limit,
		})
	}),
}

func init() {
	reportCmd.AddCommand(reportWeeksCmd)
	reportCmd.AddCommand(reportRevenueCmd)
	reportCmd.AddCommand(reportMarginCmd)
	reportCmd.AddCommand(reportLaborCmd)
	reportCmd.AddCommand(reportJobCmd)
	reportCmd.AddCommand(reportAuditCmd)
}

type reportFunc func(ctx context.Context, rds *reportDataService.ReportDataService, cfg *config.Config, args []string) (any, error)

// withReportService wires config, logging and a read-only database handle
// around a report and prints its result.
func withReportService(fn reportFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)
		cfg := config.NewConfig()

		l, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck

		if err := cfg.ValidateReport(); err != nil {
			return err
		}

		grm, err := openDatabase(cfg, l, false)
		if err != nil {
			return err
		}
		defer closeDatabase(grm)

		rds := reportDataService.NewReportDataService(grm, pgStorage.NewPostgresAuditStore(grm, l, cfg), l, cfg)

		out, err := fn(cmd.Context(), rds, cfg, args)
		if err != nil {
			return fmt.Errorf("%s report failed: %w", cmd.Name(), err)
		}
		return printJson(out)
	}
}

func reportFilter(cfg *config.Config) reportDataService.ReportFilter {
	return reportDataService.ReportFilter{
		Week:         cfg.ReportConfig.Week,
		ProductGroup: cfg.ReportConfig.ProductGroup,
	}
}

func reportPagination(cfg *config.Config) *types.Pagination {
	p := types.NewDefaultPagination()
	if cfg.ReportConfig.Limit > 0 {
		p.Load(0, uint32(cfg.ReportConfig.Limit))
	}
	return p
}
